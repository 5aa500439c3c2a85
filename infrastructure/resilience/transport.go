package resilience

import (
	"net/http"
)

// Transport wraps an http.RoundTripper with a CircuitBreaker, tripping
// open on repeated collaborator failures (5xx responses and transport
// errors alike) instead of hammering a degraded indexer, claim service,
// credential bridge, or chain RPC endpoint every cycle.
type Transport struct {
	Breaker *CircuitBreaker
	Next    http.RoundTripper
}

// NewTransport wraps next (http.DefaultTransport if nil) with a breaker
// built from cfg.
func NewTransport(cfg Config, next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{Breaker: New(cfg), Next: next}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.Breaker.Execute(req.Context(), func() error {
		r, err := t.Next.RoundTrip(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 {
			resp = r
			return ErrUpstreamServerError
		}
		resp = r
		return nil
	})
	if err == ErrUpstreamServerError {
		// The request did complete; only the breaker's accounting treats
		// a 5xx as a failure. Callers still see the real response.
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
