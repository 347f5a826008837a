package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"tourcast/internal/domain"
)

// classifyTransportError maps a failed round trip onto the provider error
// taxonomy: deadline and net timeouts are Timeout, anything else Unavailable.
func classifyTransportError(provider string, err error) *domain.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProviderError(provider, domain.ProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewProviderError(provider, domain.ProviderTimeout, err)
	}
	return domain.NewProviderError(provider, domain.ProviderUnavailable, err)
}

// classifyStatus maps a non-2xx HTTP status onto the taxonomy.
func classifyStatus(provider string, status int) *domain.ProviderError {
	err := fmt.Errorf("status %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewProviderError(provider, domain.ProviderRateLimited, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.NewProviderError(provider, domain.ProviderTimeout, err)
	case status >= http.StatusInternalServerError:
		return domain.NewProviderError(provider, domain.ProviderUnavailable, err)
	default:
		return domain.NewProviderError(provider, domain.ProviderInvalidResponse, err)
	}
}

// record emits one invocation record; a nil recorder drops it.
func record(meter Recorder, provider string, op domain.Operation, inChars, outChars int, start time.Time, success bool) {
	if meter == nil {
		return
	}
	meter.Record(domain.InvocationRecord{
		Provider:    provider,
		Operation:   op,
		InputChars:  inChars,
		OutputChars: outChars,
		Latency:     time.Since(start),
		Success:     success,
		Timestamp:   time.Now(),
	})
}
