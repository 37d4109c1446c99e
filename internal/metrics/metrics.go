// Package metrics accumulates timing, usage, and quality counters for a
// single digest run.
package metrics

import (
	"sync"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
)

// Snapshot is the immutable per-run metrics record, taken after all
// writers have finished.
type Snapshot struct {
	RunID             string                   `json:"run_id"`
	TotalDurationMs   int64                    `json:"total_duration_ms"`
	PerDomainDuration map[digest.Domain]int64  `json:"per_domain_duration_ms"`
	PerDomainStatus   map[digest.Domain]string `json:"per_domain_status"`
	InvocationMs      map[string]int64         `json:"invocation_ms"` // keyed by component/domain
	TokenCount        int                      `json:"token_count"`
	EstimatedCostUSD  float64                  `json:"estimated_cost_usd"`
	ErrorCount        int                      `json:"error_count"`
	RetryCount        int                      `json:"retry_count"`
	QualityScore      float64                  `json:"quality_score"`
}

// Recorder collects events from the invoker, the workers, and the
// validator. Workers write concurrently, so all mutation is serialized;
// Snapshot is only read after the run's fan-in completes.
type Recorder struct {
	mu       sync.Mutex
	runID    string
	started  time.Time
	domainMs map[digest.Domain]int64
	domainSt map[digest.Domain]string
	invokeMs map[string]int64
	tokens   int
	costUSD  float64
	errors   int
	retries  int
	quality  float64
}

// NewRecorder starts a fresh recorder for one run. No state carries over
// between runs.
func NewRecorder(runID string, started time.Time) *Recorder {
	return &Recorder{
		runID:    runID,
		started:  started,
		domainMs: make(map[digest.Domain]int64),
		domainSt: make(map[digest.Domain]string),
		invokeMs: make(map[string]int64),
	}
}

// Attempt records one invocation attempt: its latency accumulates into
// the call site's timer, failed attempts count toward the error total,
// and every attempt after the first counts as a retry.
func (r *Recorder) Attempt(label string, attempt int, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokeMs[label] += d.Milliseconds()
	if err != nil {
		r.errors++
	}
	if attempt > 1 {
		r.retries++
	}
}

// DomainDone records a finished section.
func (r *Recorder) DomainDone(domain digest.Domain, d time.Duration, status digest.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domainMs[domain] = d.Milliseconds()
	r.domainSt[domain] = string(status)
}

// Usage adds reasoner token and cost totals. Fetchers never report usage.
func (r *Recorder) Usage(tokens int, costUSD float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens += tokens
	r.costUSD += costUSD
}

// Quality records the validator's score for the run.
func (r *Recorder) Quality(score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quality = score
}

// Snapshot returns a point-in-time copy. It does not mutate the recorder.
func (r *Recorder) Snapshot(now time.Time) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	perDomain := make(map[digest.Domain]int64, len(r.domainMs))
	for d, ms := range r.domainMs {
		perDomain[d] = ms
	}
	perStatus := make(map[digest.Domain]string, len(r.domainSt))
	for d, s := range r.domainSt {
		perStatus[d] = s
	}
	invoke := make(map[string]int64, len(r.invokeMs))
	for l, ms := range r.invokeMs {
		invoke[l] = ms
	}

	return Snapshot{
		RunID:             r.runID,
		TotalDurationMs:   now.Sub(r.started).Milliseconds(),
		PerDomainDuration: perDomain,
		PerDomainStatus:   perStatus,
		InvocationMs:      invoke,
		TokenCount:        r.tokens,
		EstimatedCostUSD:  r.costUSD,
		ErrorCount:        r.errors,
		RetryCount:        r.retries,
		QualityScore:      r.quality,
	}
}
