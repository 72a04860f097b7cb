package genai

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
)

// IsTransient reports whether err is worth retrying against the provider:
// rate limiting, provider-side failures, and timeouts. Anything else
// (auth errors, bad requests, validation failures) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"resource exhausted",
		"quota",
		"429",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"internal error",
		"500",
		"502",
		"503",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
