package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"semcode/internal/embed"
)

// ClassifyError maps a backend error onto the capability error kinds so
// callers can decide between retry and abort.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", embed.ErrTransient, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", embed.ErrAuth, err)
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", embed.ErrInvalidInput, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusRequestTimeout || apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", embed.ErrTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", embed.ErrTransient, err)
	}
	return err
}
