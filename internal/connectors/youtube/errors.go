package youtube

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// ErrNoChannel indicates the Google account has no YouTube channel.
var ErrNoChannel = errors.New("youtube: account has no channel")

// wrapError maps Google API errors. A 401 becomes domain.ErrTokenExpired and
// a 429 backs off the shared limiter.
func wrapError(err error, limiter *httpx.RateLimiter, operation string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("youtube: %s: %w", operation, err)
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("youtube: %s: %w: %w", operation, domain.ErrTokenExpired, err)
	case http.StatusTooManyRequests:
		limiter.RecordRateLimitError(0)
	}
	return fmt.Errorf("youtube: %s: %w", operation, err)
}

// IsUnauthorized returns true if the error indicates invalid credentials.
func IsUnauthorized(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusUnauthorized
	}
	return false
}

// IsForbidden returns true if the error indicates insufficient permissions.
func IsForbidden(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusForbidden
	}
	return false
}
