// Package validate runs the quality gate over a finished draft:
// freshness, source trust, completeness, and content length, folded
// into a scalar quality score.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/metrics"
)

// Penalty weights per issue severity. Errors gate publishing, warnings
// only lower the score.
const (
	errorPenalty = 0.2
	warnPenalty  = 0.05
)

// Config holds the validation thresholds. Zero values fall back to the
// defaults below.
type Config struct {
	// WarnAfter is the payload age above which freshness is a warning.
	WarnAfter time.Duration
	// ErrorAfter is the payload age above which freshness is an error.
	ErrorAfter time.Duration
	// MinNarrativeChars is the shortest acceptable narrative.
	MinNarrativeChars int
	// TrustedSources maps a domain to source substrings considered
	// trustworthy. An empty list disables the trust rule for that
	// domain.
	TrustedSources map[digest.Domain][]string
}

// Validator evaluates a draft against the configured domain set and
// reports the resulting quality score to the run's recorder.
type Validator struct {
	domains []digest.Domain
	cfg     Config
	rec     *metrics.Recorder
}

// New creates a validator for one run. domains is the configured set
// the draft is expected to cover, in report order.
func New(domains []digest.Domain, cfg Config, rec *metrics.Recorder) *Validator {
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = time.Hour
	}
	if cfg.ErrorAfter <= 0 {
		cfg.ErrorAfter = 24 * time.Hour
	}
	if cfg.MinNarrativeChars <= 0 {
		cfg.MinNarrativeChars = 50
	}
	return &Validator{domains: domains, cfg: cfg, rec: rec}
}

// Validate checks every configured domain of the draft and returns the
// report. Issues are ordered by the configured domain order, then by
// rule, so two validations of the same draft produce identical reports.
func (v *Validator) Validate(draft *digest.Draft, now time.Time) *digest.Report {
	report := &digest.Report{}

	for _, d := range v.domains {
		sec, ok := draft.Sections[d]
		if !ok {
			report.Issues = append(report.Issues, digest.Issue{
				Domain:   d,
				Rule:     "completeness",
				Message:  "section missing from draft",
				Severity: digest.SeverityError,
			})
			continue
		}
		report.Issues = append(report.Issues, v.checkSection(d, sec, now)...)
	}

	report.QualityScore = score(report)
	report.Passed = report.Errors() == 0
	if v.rec != nil {
		v.rec.Quality(report.QualityScore)
	}
	return report
}

func (v *Validator) checkSection(d digest.Domain, sec digest.SectionResult, now time.Time) []digest.Issue {
	var issues []digest.Issue

	if sec.Fetch != nil && !sec.Fetch.FetchedAt.IsZero() {
		age := now.Sub(sec.Fetch.FetchedAt)
		switch {
		case age > v.cfg.ErrorAfter:
			issues = append(issues, digest.Issue{
				Domain:   d,
				Rule:     "freshness",
				Message:  fmt.Sprintf("payload is %s old, limit is %s", age.Round(time.Minute), v.cfg.ErrorAfter),
				Severity: digest.SeverityError,
			})
		case age > v.cfg.WarnAfter:
			issues = append(issues, digest.Issue{
				Domain:   d,
				Rule:     "freshness",
				Message:  fmt.Sprintf("payload is %s old", age.Round(time.Minute)),
				Severity: digest.SeverityWarning,
			})
		}
	}

	if sec.Fetch != nil && !v.trustedSource(d, sec.Fetch.Source) {
		issues = append(issues, digest.Issue{
			Domain:   d,
			Rule:     "source_trust",
			Message:  fmt.Sprintf("source %q is not in the trusted set", sec.Fetch.Source),
			Severity: digest.SeverityError,
		})
	}

	switch sec.Status {
	case digest.StatusFailed:
		msg := "section failed"
		if sec.Err != "" {
			msg += ": " + sec.Err
		}
		issues = append(issues, digest.Issue{
			Domain:   d,
			Rule:     "completeness",
			Message:  msg,
			Severity: digest.SeverityError,
		})
	case digest.StatusDegraded:
		msg := "section degraded to fallback narrative"
		if sec.Err != "" {
			msg += ": " + sec.Err
		}
		issues = append(issues, digest.Issue{
			Domain:   d,
			Rule:     "completeness",
			Message:  msg,
			Severity: digest.SeverityWarning,
		})
	}

	// A failed section has no narrative to measure; completeness
	// already covers it.
	if sec.Status != digest.StatusFailed && len(sec.Narrative) < v.cfg.MinNarrativeChars {
		issues = append(issues, digest.Issue{
			Domain:   d,
			Rule:     "content_length",
			Message:  fmt.Sprintf("narrative is %d characters, minimum is %d", len(sec.Narrative), v.cfg.MinNarrativeChars),
			Severity: digest.SeverityWarning,
		})
	}

	return issues
}

// trustedSource reports whether the source identifier matches any
// configured substring for the domain, case-insensitively. Sources
// listing several hosts pass if any one of them is trusted.
func (v *Validator) trustedSource(d digest.Domain, source string) bool {
	trusted := v.cfg.TrustedSources[d]
	if len(trusted) == 0 {
		return true
	}
	s := strings.ToLower(source)
	for _, t := range trusted {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func score(report *digest.Report) float64 {
	s := 1.0
	s -= errorPenalty * float64(report.Errors())
	s -= warnPenalty * float64(report.Warnings())
	if s < 0 {
		return 0
	}
	return s
}
