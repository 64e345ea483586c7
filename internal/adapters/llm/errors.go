package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
)

var errEmptyResponse = errors.New("empty response")

// classify maps a provider failure onto an error kind by inspecting the
// message, since providers surface HTTP status only as text.
func classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return kind
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid key") || strings.Contains(lower, "authentication"):
		return domain.KindAuth
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota"):
		return domain.KindRateLimit
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return domain.KindTimeout
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") ||
		strings.Contains(lower, "status"):
		return domain.KindAPIStatus
	}
	return domain.KindUnknown
}

func retryable(err error) bool {
	switch classify(err) {
	case domain.KindAuth, domain.KindInvalidInput, domain.KindPermission:
		return false
	default:
		return true
	}
}
