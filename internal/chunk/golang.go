package chunk

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// splitGo produces one unit per top-level declaration, leading doc comment
// included. Import blocks are skipped; a file with no declarations yields a
// single unit covering the package clause.
func splitGo(src []byte) ([]unit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil || file == nil {
		return nil, err
	}

	var units []unit
	for _, decl := range file.Decls {
		start, end, symbol := declExtent(decl)
		if start == token.NoPos {
			continue
		}
		sp := fset.Position(start)
		ep := fset.Position(end)
		if sp.Offset < 0 || ep.Offset > len(src) || sp.Offset >= ep.Offset {
			continue
		}
		units = append(units, unit{
			text:      string(src[sp.Offset:ep.Offset]),
			startByte: sp.Offset,
			endByte:   ep.Offset,
			startLine: sp.Line,
			endLine:   ep.Line,
			symbol:    symbol,
		})
	}

	if len(units) == 0 {
		u := wholeFile(src)
		if file.Name != nil {
			u.symbol = file.Name.Name
		}
		units = append(units, u)
	}
	return units, nil
}

func declExtent(decl ast.Decl) (token.Pos, token.Pos, string) {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		start := d.Pos()
		if d.Doc != nil {
			start = d.Doc.Pos()
		}
		name := d.Name.Name
		if d.Recv != nil && len(d.Recv.List) > 0 {
			name = receiverName(d.Recv.List[0].Type) + "." + name
		}
		return start, d.End(), name
	case *ast.GenDecl:
		if d.Tok == token.IMPORT {
			return token.NoPos, token.NoPos, ""
		}
		start := d.Pos()
		if d.Doc != nil {
			start = d.Doc.Pos()
		}
		return start, d.End(), genDeclName(d)
	}
	return token.NoPos, token.NoPos, ""
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	}
	return ""
}

func genDeclName(d *ast.GenDecl) string {
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			return s.Name.Name
		case *ast.ValueSpec:
			if len(s.Names) > 0 {
				return s.Names[0].Name
			}
		}
	}
	return ""
}
