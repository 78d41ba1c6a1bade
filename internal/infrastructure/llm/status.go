package llm

import (
	"fmt"
	"net/http"

	"fixifox/internal/domain/entity"
	"fixifox/internal/orchestration"
)

// kindForStatus maps provider HTTP status codes to a failure kind. Codes that
// say nothing specific (400, 500) are left to text classification.
func kindForStatus(code int) (entity.FailureKind, bool) {
	switch code {
	case http.StatusTooManyRequests:
		return entity.FailureRateLimited, true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return entity.FailureTimeout, true
	case http.StatusRequestEntityTooLarge:
		return entity.FailurePayloadTooLarge, true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return entity.FailureBackendUnavailable, true
	}
	return "", false
}

// statusError tags err with the kind its status code implies.
func statusError(provider string, code int, err error) error {
	err = fmt.Errorf("%s api error %d: %w", provider, code, err)
	if kind, ok := kindForStatus(code); ok {
		return orchestration.WithKind(kind, err)
	}
	return err
}
