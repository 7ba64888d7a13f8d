package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/nvasquez/portfolio-chat/backend/internal/services/errorlog"
)

// Classify maps a failed provider attempt onto the error taxonomy used by
// the error log. Context expiry counts as a timeout: a provider that does
// not answer inside the deadline is a failure, not a hang.
func Classify(err error) errorlog.ErrorType {
	if err == nil {
		return errorlog.ErrorOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorlog.ErrorTimeout
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return errorlog.ErrorRateLimit
		case http.StatusForbidden, http.StatusPaymentRequired:
			return errorlog.ErrorQuota
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return errorlog.ErrorTimeout
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing") || strings.Contains(msg, "insufficient"):
		return errorlog.ErrorQuota
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return errorlog.ErrorRateLimit
	default:
		return errorlog.ErrorOther
	}
}
