package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/fetch"
	"github.com/mfriman/daybrief/internal/reason"
	"github.com/mfriman/daybrief/internal/retry"
)

// Summarizer is the reasoning capability a worker invokes after a
// successful fetch.
type Summarizer interface {
	Summarize(ctx context.Context, domain digest.Domain, payload digest.Payload) (string, error)
}

// worker pairs one domain's fetcher with the reasoner. Every outcome,
// including a panic, terminates in a SectionResult; nothing propagates
// to the orchestrator as an error.
type worker struct {
	domain     digest.Domain
	fetcher    fetch.Fetcher
	summarizer Summarizer
	invoker    *retry.Invoker
	policies   Policies
	log        *slog.Logger
}

func (w *worker) run(ctx context.Context) (sec digest.SectionResult) {
	sec = digest.SectionResult{
		Domain:    w.domain,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker panicked", "domain", w.domain, "panic", r)
			sec.Status = digest.StatusFailed
			sec.Err = fmt.Sprintf("panic: %v", r)
		}
		sec.FinishedAt = time.Now().UTC()
	}()

	result, attempts, err := retry.Do(ctx, w.invoker, w.policies.Fetch, "fetch/"+string(w.domain),
		func(ctx context.Context) (*digest.FetchResult, error) {
			return w.fetcher.Fetch(ctx)
		})
	sec.FetchAttempts = attempts
	if err != nil {
		// No data, no narrative: the reasoner is never consulted for a
		// failed fetch.
		sec.Status = digest.StatusFailed
		sec.Err = err.Error()
		return sec
	}
	sec.Fetch = result

	narrative, reasonAttempts, err := retry.Do(ctx, w.invoker, w.policies.Reason, "reason/"+string(w.domain),
		func(ctx context.Context) (string, error) {
			return w.summarizer.Summarize(ctx, w.domain, result.Payload)
		})
	sec.ReasonAttempts = reasonAttempts
	if err != nil {
		sec.Status = digest.StatusDegraded
		sec.Narrative = reason.Fallback(w.domain, result.Payload)
		sec.Err = err.Error()
		w.log.Warn("section degraded to fallback narrative", "domain", w.domain, "err", err)
		return sec
	}

	sec.Status = digest.StatusOK
	sec.Narrative = narrative
	return sec
}
