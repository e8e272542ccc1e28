// Package apierr maps AI provider failures onto domain errors so retry
// decisions are made in one place.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// maxBodyLen bounds provider messages quoted in errors.
const maxBodyLen = 300

// FromStatus classifies an HTTP failure from provider.
func FromStatus(provider string, status int, message string) error {
	message = strings.TrimSpace(message)
	if len(message) > maxBodyLen {
		message = message[:maxBodyLen] + "..."
	}
	return fmt.Errorf("%s: %w (status %d): %s", provider, Sentinel(status), status, message)
}

// Sentinel returns the domain error for an HTTP status code.
func Sentinel(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return domain.ErrTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuthInvalid
	case status == http.StatusRequestEntityTooLarge:
		return domain.ErrTooLong
	case status >= 400:
		return domain.ErrInvalidInput
	default:
		return domain.ErrTransient
	}
}

// FromTransport classifies an error raised before a status was received.
// Context errors are preserved; network failures are transient.
func FromTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", provider, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

// Wrap classifies err using status when known (> 0), otherwise as a
// transport failure.
func Wrap(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if status > 0 {
		return fmt.Errorf("%s: %w (status %d): %w", provider, Sentinel(status), status, err)
	}
	return FromTransport(provider, err)
}
