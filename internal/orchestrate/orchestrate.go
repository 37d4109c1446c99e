// Package orchestrate runs one digest generation: a worker per domain,
// all dispatched concurrently, collected under a global deadline into a
// draft that always carries one section per configured domain.
package orchestrate

import (
	"context"
	"log/slog"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/fetch"
	"github.com/mfriman/daybrief/internal/metrics"
	"github.com/mfriman/daybrief/internal/retry"
)

// Policies holds the two retry policies of a run: fetching retries more
// with shorter attempts, reasoning retries less with longer ones.
type Policies struct {
	Fetch  retry.Policy
	Reason retry.Policy
}

// Orchestrator dispatches the domain workers and aggregates their
// results.
type Orchestrator struct {
	registry   *fetch.Registry
	summarizer Summarizer
	rec        *metrics.Recorder
	policies   Policies
	deadline   time.Duration
	log        *slog.Logger
}

// New wires an orchestrator for a single run. The recorder is the run's
// recorder; a fresh orchestrator is built per run.
func New(registry *fetch.Registry, summarizer Summarizer, rec *metrics.Recorder, policies Policies, deadline time.Duration, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		summarizer: summarizer,
		rec:        rec,
		policies:   policies,
		deadline:   deadline,
		log:        log,
	}
}

// Run executes all workers concurrently and returns the draft. It never
// blocks past the run deadline: unfinished domains are synthesized as
// failed with a timeout reason and straggling workers are abandoned.
func (o *Orchestrator) Run(ctx context.Context, runID string) *digest.Draft {
	domains := o.registry.Domains()
	draft := &digest.Draft{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Sections:  make(map[digest.Domain]digest.SectionResult, len(domains)),
	}

	runCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	// Buffered so abandoned workers can still deliver and exit.
	results := make(chan digest.SectionResult, len(domains))

	started := 0
	for _, d := range domains {
		fetcher, err := o.registry.Resolve(d)
		if err != nil {
			// Registry construction validates domains; this is a guard,
			// not an expected path.
			draft.Sections[d] = failedSection(d, draft.CreatedAt, err.Error())
			continue
		}

		w := &worker{
			domain:     d,
			fetcher:    fetcher,
			summarizer: o.summarizer,
			invoker:    retry.NewInvoker(o.rec, o.log),
			policies:   o.policies,
			log:        o.log.With("component", "worker"),
		}
		go func() {
			results <- w.run(runCtx)
		}()
		started++
	}

	for pending := started; pending > 0; {
		select {
		case sec := <-results:
			draft.Sections[sec.Domain] = sec
			o.rec.DomainDone(sec.Domain, sec.Duration(), sec.Status)
			pending--
		case <-runCtx.Done():
			o.log.Warn("run deadline elapsed, abandoning unfinished workers",
				"deadline", o.deadline, "pending", pending)
			// Keep results that were delivered before the deadline won
			// the select; only truly unfinished workers are abandoned.
			for drained := false; !drained && pending > 0; {
				select {
				case sec := <-results:
					draft.Sections[sec.Domain] = sec
					o.rec.DomainDone(sec.Domain, sec.Duration(), sec.Status)
					pending--
				default:
					drained = true
				}
			}
			pending = 0
		}
	}

	// Exactly one section per domain, no matter what happened above.
	for _, d := range domains {
		if _, ok := draft.Sections[d]; ok {
			continue
		}
		sec := failedSection(d, draft.CreatedAt, "timeout: run deadline elapsed")
		draft.Sections[d] = sec
		o.rec.DomainDone(d, sec.Duration(), sec.Status)
	}

	return draft
}

func failedSection(d digest.Domain, startedAt time.Time, reason string) digest.SectionResult {
	return digest.SectionResult{
		Domain:     d,
		Status:     digest.StatusFailed,
		Err:        reason,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
}
