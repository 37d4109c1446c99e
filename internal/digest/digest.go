// Package digest defines the entities that flow through a digest run:
// fetch payloads, per-domain section results, the draft, the validation
// report, and the publishable digest.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Domain is one of the fixed content categories a digest covers.
type Domain string

const (
	DomainWeather Domain = "weather"
	DomainSports  Domain = "sports"
	DomainTech    Domain = "tech"
	DomainMarket  Domain = "market"
)

// AllDomains lists the known domains in presentation order.
var AllDomains = []Domain{DomainWeather, DomainSports, DomainTech, DomainMarket}

// ParseDomain validates a domain key from configuration.
func ParseDomain(s string) (Domain, error) {
	for _, d := range AllDomains {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// Title returns the domain's display name.
func (d Domain) Title() string {
	if d == "" {
		return ""
	}
	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

// Status is the outcome class of one section.
type Status string

const (
	StatusOK       Status = "ok"       // fetched and summarized
	StatusDegraded Status = "degraded" // fetched, but narrative is a fallback rendering
	StatusFailed   Status = "failed"   // no usable data for the domain
)

// Payload is the structured data a fetcher returns for its domain.
// Concrete types: WeatherReport, SportsReport, TechReport, MarketReport.
type Payload interface {
	Facts() []string // compact fact lines, the raw material for narratives
}

// FetchResult pairs a payload with its provenance.
type FetchResult struct {
	Source    string    `json:"source"`     // identifier of the producing system
	FetchedAt time.Time `json:"fetched_at"` // data-origin timestamp
	Payload   Payload   `json:"payload"`
}

// SectionResult is the per-domain outcome of one run. A worker creates it,
// and it is never mutated after the worker returns.
type SectionResult struct {
	Domain         Domain       `json:"domain"`
	Status         Status       `json:"status"`
	Fetch          *FetchResult `json:"fetch,omitempty"`
	Narrative      string       `json:"narrative,omitempty"`
	Err            string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	FetchAttempts  int          `json:"fetch_attempts"`
	ReasonAttempts int          `json:"reason_attempts"`
}

// Duration is the wall time the section's worker spent.
func (s SectionResult) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Draft is the unvalidated aggregation of all section results for a run.
// It holds exactly one entry per configured domain, even when every
// worker failed.
type Draft struct {
	RunID     string                   `json:"run_id"`
	CreatedAt time.Time                `json:"created_at"`
	Sections  map[Domain]SectionResult `json:"sections"`
}

// Completeness counts the sections that carry data (status ok or degraded).
func (d *Draft) Completeness() int {
	n := 0
	for _, s := range d.Sections {
		if s.Status != StatusFailed {
			n++
		}
	}
	return n
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one validation finding against a draft.
type Issue struct {
	Domain   Domain   `json:"domain"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Report is the validator's verdict over a whole draft.
type Report struct {
	Issues       []Issue `json:"issues"`
	QualityScore float64 `json:"quality_score"` // in [0, 1]
	Passed       bool    `json:"passed"`        // true iff no error-severity issue
}

// Errors counts the error-severity issues.
func (r *Report) Errors() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings counts the warning-severity issues.
func (r *Report) Warnings() int {
	return len(r.Issues) - r.Errors()
}

// Digest is the publishable entity built from a draft that cleared the
// quality gate, or was explicitly published in degraded form.
type Digest struct {
	RunID        string                   `json:"run_id"`
	CreatedAt    time.Time                `json:"created_at"`
	Sections     map[Domain]SectionResult `json:"sections"`
	QualityScore float64                  `json:"quality_score"`
	Degraded     bool                     `json:"degraded"`
}

// NewRunID returns a fresh run identifier: the UTC date plus a short
// random suffix so reruns on the same day stay distinct.
func NewRunID(now time.Time) string {
	return now.UTC().Format("2006-01-02") + "-" + uuid.NewString()[:8]
}
