// Package staging prepares a repository snapshot for indexing: it copies the
// requested source trees into the workspace, skipping ignored entries, and
// resolves the file list plus a language hint per file.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrNoSources = errors.New("at least one source path is required")

// DefaultIgnorePatterns matches directory and file names that are never worth
// indexing: VCS internals, caches, build output, vendored toolchains.
var DefaultIgnorePatterns = []string{
	".*",
	"__pycache__",
	"node_modules",
	"venv",
	"build*",
	"dist",
	"tmp",
	"target",
	"vendor",
	"vcpkg_installed",
	"CMakeFiles",
}

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cxx":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".hxx":  "cpp",
	".hh":   "cpp",
	".java": "java",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".md":   "markdown",
}

// File is one staged source file, path relative to the snapshot root.
type File struct {
	Path     string
	Language string
}

// Result describes a completed snapshot.
type Result struct {
	Name      string
	Root      string
	Files     []File
	Languages []string
}

type Options struct {
	Name        string
	Sources     []string
	Force       bool
	Ignore      []string
	Concurrency int
	// Progress is called once per copied file; may be nil.
	Progress func(path string)
}

// Stager copies source trees into the workspace root.
type Stager struct {
	workspace string
}

func New(workspace string) *Stager {
	return &Stager{workspace: workspace}
}

// Stage builds the snapshot under <workspace>/<name>. An existing snapshot is
// reused unless Force is set, in which case it is removed and rebuilt.
func (s *Stager) Stage(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Sources) == 0 {
		return nil, ErrNoSources
	}

	patterns := append(append([]string{}, DefaultIgnorePatterns...), opts.Ignore...)
	target := filepath.Join(s.workspace, opts.Name)

	if _, err := os.Stat(target); err == nil {
		if !opts.Force {
			slog.Info("reusing existing snapshot", "target", target)
			return s.resolve(opts.Name, target)
		}
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("removing stale snapshot: %w", err)
		}
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	progress := func(path string) {
		if opts.Progress == nil {
			return
		}
		mu.Lock()
		opts.Progress(path)
		mu.Unlock()
	}

	for _, src := range opts.Sources {
		resolved, err := filepath.Abs(src)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("source path not found: %w", err)
		}
		if ignored(filepath.Base(resolved), patterns) {
			slog.Info("skipping ignored source", "source", resolved)
			continue
		}

		if !info.IsDir() {
			dst := filepath.Join(target, filepath.Base(resolved))
			if err := copyFile(resolved, dst); err != nil {
				return nil, err
			}
			progress(dst)
			continue
		}

		root := resolved
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && ignored(d.Name(), patterns) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			dst := filepath.Join(target, filepath.Base(root), rel)
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err := copyFile(path, dst); err != nil {
					return err
				}
				progress(dst)
				return nil
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.resolve(opts.Name, target)
}

// resolve walks the finished snapshot and builds the file list the indexing
// core consumes.
func (s *Stager) resolve(name, root string) (*Result, error) {
	res := &Result{Name: name, Root: root}
	langs := make(map[string]struct{})

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		res.Files = append(res.Files, File{Path: rel, Language: lang})
		langs[lang] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	for lang := range langs {
		res.Languages = append(res.Languages, lang)
	}
	sort.Strings(res.Languages)
	return res, nil
}

func ignored(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
