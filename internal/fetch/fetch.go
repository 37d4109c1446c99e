// Package fetch provides the domain fetchers and the registry that maps
// each configured domain to its concrete implementation. The registry is
// resolved once at startup; nothing selects a fetcher by name at call
// time.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
)

// Fetcher retrieves structured facts for one domain. Request parameters
// are bound from configuration when the fetcher is built.
type Fetcher interface {
	Domain() digest.Domain
	Fetch(ctx context.Context) (*digest.FetchResult, error)
}

// RequestError is a typed fetch failure. Retryable drives the invoker's
// policy: rate limits and server errors are transient, auth and bad
// requests are permanent.
type RequestError struct {
	Source    string
	Code      int // HTTP status, 0 for non-HTTP failures
	Message   string
	Retryable bool
}

func (e *RequestError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s returned %d: %s", e.Source, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Retryable classifies fetch errors for the retry policy. Network
// timeouts are always retryable.
func Retryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// statusError builds the RequestError for a non-2xx response.
func statusError(source string, code int) *RequestError {
	return &RequestError{
		Source:    source,
		Code:      code,
		Message:   http.StatusText(code),
		Retryable: code == http.StatusTooManyRequests || code >= 500,
	}
}

// keyMissingError is the permanent failure for an unset API key.
func keyMissingError(source, envName string) *RequestError {
	return &RequestError{
		Source:    source,
		Message:   envName + " not set",
		Retryable: false,
	}
}

// getJSON issues a GET and decodes the JSON body into v.
func getJSON(ctx context.Context, client *http.Client, source, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "daybrief/1.0 (daily digest)")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(source, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", source, err)
	}
	return nil
}

func newHTTPClient() *http.Client {
	// Per-attempt deadlines come from the invoker's context; the client
	// timeout is only a backstop.
	return &http.Client{Timeout: 60 * time.Second}
}

// Registry holds the resolved fetcher per domain.
type Registry struct {
	fetchers map[digest.Domain]Fetcher
	order    []digest.Domain
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[digest.Domain]Fetcher)}
}

// Register adds a fetcher. Registering a domain twice is a configuration
// error and fails rather than silently letting the last one win.
func (r *Registry) Register(f Fetcher) error {
	d := f.Domain()
	if _, ok := r.fetchers[d]; ok {
		return fmt.Errorf("duplicate fetcher for domain %q", d)
	}
	r.fetchers[d] = f
	r.order = append(r.order, d)
	return nil
}

// Resolve returns the fetcher for a domain.
func (r *Registry) Resolve(d digest.Domain) (Fetcher, error) {
	f, ok := r.fetchers[d]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for domain %q", d)
	}
	return f, nil
}

// Domains lists the registered domains in registration order.
func (r *Registry) Domains() []digest.Domain {
	out := make([]digest.Domain, len(r.order))
	copy(out, r.order)
	return out
}
