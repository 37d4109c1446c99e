package validate

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/metrics"
)

var testNow = time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)

const longNarrative = "A pleasant day across the board with clear skies and calm markets everywhere."

func okSection(d digest.Domain, age time.Duration, source string) digest.SectionResult {
	return digest.SectionResult{
		Domain: d,
		Status: digest.StatusOK,
		Fetch: &digest.FetchResult{
			Source:    source,
			FetchedAt: testNow.Add(-age),
			Payload:   &digest.WeatherReport{Location: "San Jose,US", TempF: 72},
		},
		Narrative:  longNarrative,
		StartedAt:  testNow.Add(-time.Minute),
		FinishedAt: testNow,
	}
}

func cleanDraft() *digest.Draft {
	return &digest.Draft{
		RunID:     "2026-08-21-aaaa1111",
		CreatedAt: testNow,
		Sections: map[digest.Domain]digest.SectionResult{
			digest.DomainWeather: okSection(digest.DomainWeather, 10*time.Minute, "api.openweathermap.org"),
			digest.DomainSports:  okSection(digest.DomainSports, 20*time.Minute, "www.thesportsdb.com"),
			digest.DomainTech:    okSection(digest.DomainTech, 30*time.Minute, "techcrunch.com, arstechnica.com"),
			digest.DomainMarket:  okSection(digest.DomainMarket, 40*time.Minute, "www.alphavantage.co"),
		},
	}
}

func testConfig() Config {
	return Config{
		WarnAfter:         time.Hour,
		ErrorAfter:        24 * time.Hour,
		MinNarrativeChars: 50,
		TrustedSources: map[digest.Domain][]string{
			digest.DomainWeather: {"openweathermap"},
			digest.DomainSports:  {"thesportsdb"},
			digest.DomainTech:    {"techcrunch", "arstechnica", "theverge"},
			digest.DomainMarket:  {"alphavantage"},
		},
	}
}

func newTestValidator() *Validator {
	return New(digest.AllDomains, testConfig(), nil)
}

func TestValidateCleanDraft(t *testing.T) {
	report := newTestValidator().Validate(cleanDraft(), testNow)

	if len(report.Issues) != 0 {
		t.Fatalf("got %d issues, want none: %+v", len(report.Issues), report.Issues)
	}
	if !report.Passed {
		t.Error("clean draft must pass")
	}
	if report.QualityScore != 1.0 {
		t.Errorf("quality score = %v, want 1.0", report.QualityScore)
	}
}

func TestValidateFailedSectionIsCompletenessError(t *testing.T) {
	draft := cleanDraft()
	draft.Sections[digest.DomainWeather] = digest.SectionResult{
		Domain: digest.DomainWeather,
		Status: digest.StatusFailed,
		Err:    "fetch/weather: attempt 3: 503 from api.openweathermap.org",
	}

	report := newTestValidator().Validate(draft, testNow)

	if report.Passed {
		t.Error("draft with a failed section must not pass")
	}
	if report.Errors() != 1 {
		t.Fatalf("got %d errors, want 1: %+v", report.Errors(), report.Issues)
	}
	issue := report.Issues[0]
	if issue.Domain != digest.DomainWeather || issue.Rule != "completeness" {
		t.Errorf("issue = %+v, want weather/completeness", issue)
	}
	if !strings.Contains(issue.Message, "503") {
		t.Errorf("issue message %q should carry the section error", issue.Message)
	}
	if got, want := report.QualityScore, 0.8; math.Abs(got-want) > 1e-9 {
		t.Errorf("quality score = %v, want %v", got, want)
	}
}

func TestValidateDegradedSectionIsWarning(t *testing.T) {
	draft := cleanDraft()
	sec := draft.Sections[digest.DomainTech]
	sec.Status = digest.StatusDegraded
	sec.Err = "reason/tech: attempt 2: openai returned status 503"
	draft.Sections[digest.DomainTech] = sec

	report := newTestValidator().Validate(draft, testNow)

	if !report.Passed {
		t.Error("warnings alone must not gate publishing")
	}
	if report.Warnings() != 1 {
		t.Fatalf("got %d warnings, want 1: %+v", report.Warnings(), report.Issues)
	}
	if got, want := report.QualityScore, 0.95; math.Abs(got-want) > 1e-9 {
		t.Errorf("quality score = %v, want %v", got, want)
	}
}

func TestValidateFreshness(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		severity digest.Severity
	}{
		{"fresh", 30 * time.Minute, ""},
		{"aging", 2 * time.Hour, digest.SeverityWarning},
		{"stale", 30 * time.Hour, digest.SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := cleanDraft()
			draft.Sections[digest.DomainMarket] = okSection(digest.DomainMarket, tt.age, "www.alphavantage.co")

			report := newTestValidator().Validate(draft, testNow)

			if tt.severity == "" {
				if len(report.Issues) != 0 {
					t.Fatalf("got issues %+v, want none", report.Issues)
				}
				return
			}
			if len(report.Issues) != 1 {
				t.Fatalf("got %d issues, want 1: %+v", len(report.Issues), report.Issues)
			}
			issue := report.Issues[0]
			if issue.Rule != "freshness" || issue.Severity != tt.severity || issue.Domain != digest.DomainMarket {
				t.Errorf("issue = %+v, want market/freshness/%s", issue, tt.severity)
			}
		})
	}
}

func TestValidateUntrustedSource(t *testing.T) {
	draft := cleanDraft()
	draft.Sections[digest.DomainTech] = okSection(digest.DomainTech, 5*time.Minute, "sketchy-aggregator.example")

	report := newTestValidator().Validate(draft, testNow)

	if report.Passed {
		t.Error("untrusted source must fail the gate")
	}
	if len(report.Issues) != 1 || report.Issues[0].Rule != "source_trust" {
		t.Fatalf("got %+v, want one source_trust issue", report.Issues)
	}
}

func TestValidateTrustMatchesSubstringCaseInsensitive(t *testing.T) {
	draft := cleanDraft()
	draft.Sections[digest.DomainTech] = okSection(digest.DomainTech, 5*time.Minute, "Feeds.ArsTechnica.com")

	report := newTestValidator().Validate(draft, testNow)

	if len(report.Issues) != 0 {
		t.Fatalf("got issues %+v, want none", report.Issues)
	}
}

func TestValidateEmptyTrustSetSkipsRule(t *testing.T) {
	cfg := testConfig()
	delete(cfg.TrustedSources, digest.DomainSports)
	draft := cleanDraft()
	draft.Sections[digest.DomainSports] = okSection(digest.DomainSports, 5*time.Minute, "anything.example")

	report := New(digest.AllDomains, cfg, nil).Validate(draft, testNow)

	if len(report.Issues) != 0 {
		t.Fatalf("got issues %+v, want none when no trust set is configured", report.Issues)
	}
}

func TestValidateShortNarrativeIsWarning(t *testing.T) {
	draft := cleanDraft()
	sec := draft.Sections[digest.DomainWeather]
	sec.Narrative = "Sunny."
	draft.Sections[digest.DomainWeather] = sec

	report := newTestValidator().Validate(draft, testNow)

	if len(report.Issues) != 1 || report.Issues[0].Rule != "content_length" {
		t.Fatalf("got %+v, want one content_length warning", report.Issues)
	}
	if report.Issues[0].Severity != digest.SeverityWarning {
		t.Errorf("severity = %s, want warning", report.Issues[0].Severity)
	}
	if !report.Passed {
		t.Error("a short narrative alone must not gate publishing")
	}
}

func TestValidateMissingDomainIsError(t *testing.T) {
	draft := cleanDraft()
	delete(draft.Sections, digest.DomainSports)

	report := newTestValidator().Validate(draft, testNow)

	if report.Passed {
		t.Error("missing domain must fail the gate")
	}
	if len(report.Issues) != 1 || report.Issues[0].Rule != "completeness" {
		t.Fatalf("got %+v, want one completeness error", report.Issues)
	}
	if !strings.Contains(report.Issues[0].Message, "missing") {
		t.Errorf("message %q should say the section is missing", report.Issues[0].Message)
	}
}

func TestValidateScoreFloorsAtZero(t *testing.T) {
	draft := &digest.Draft{
		RunID:     "2026-08-21-bbbb2222",
		CreatedAt: testNow,
		Sections:  map[digest.Domain]digest.SectionResult{},
	}
	// Every domain is stale, untrusted, and failed: three errors each,
	// twelve in total, so the raw score would be far below zero.
	for _, d := range digest.AllDomains {
		draft.Sections[d] = digest.SectionResult{
			Domain: d,
			Status: digest.StatusFailed,
			Fetch: &digest.FetchResult{
				Source:    "sketchy-aggregator.example",
				FetchedAt: testNow.Add(-30 * time.Hour),
			},
			Err: "boom",
		}
	}

	report := New(digest.AllDomains, testConfig(), nil).Validate(draft, testNow)

	if report.QualityScore != 0 {
		t.Errorf("quality score = %v, want 0", report.QualityScore)
	}
	if report.Passed {
		t.Error("all-failed draft must not pass")
	}
}

func TestValidateMoreCompleteDraftScoresNoWorse(t *testing.T) {
	full := cleanDraft()

	partial := cleanDraft()
	sec := partial.Sections[digest.DomainMarket]
	sec.Status = digest.StatusFailed
	sec.Fetch = nil
	sec.Narrative = ""
	sec.Err = "boom"
	partial.Sections[digest.DomainMarket] = sec

	v := newTestValidator()
	fullScore := v.Validate(full, testNow).QualityScore
	partialScore := v.Validate(partial, testNow).QualityScore

	if fullScore < partialScore {
		t.Errorf("full draft scored %v, partial %v; completing a domain must never lower the score", fullScore, partialScore)
	}
}

func TestValidateIssueOrderFollowsDomainOrder(t *testing.T) {
	draft := cleanDraft()
	for _, d := range []digest.Domain{digest.DomainWeather, digest.DomainTech} {
		sec := draft.Sections[d]
		sec.Status = digest.StatusFailed
		sec.Fetch = nil
		sec.Narrative = ""
		sec.Err = "boom"
		draft.Sections[d] = sec
	}

	report := newTestValidator().Validate(draft, testNow)

	if len(report.Issues) != 2 {
		t.Fatalf("got %d issues, want 2: %+v", len(report.Issues), report.Issues)
	}
	if report.Issues[0].Domain != digest.DomainWeather || report.Issues[1].Domain != digest.DomainTech {
		t.Errorf("issue order = %s, %s; want weather, tech", report.Issues[0].Domain, report.Issues[1].Domain)
	}
}

func TestValidateReportsScoreToRecorder(t *testing.T) {
	rec := metrics.NewRecorder("run-q", testNow)
	draft := cleanDraft()
	sec := draft.Sections[digest.DomainWeather]
	sec.Status = digest.StatusDegraded
	draft.Sections[digest.DomainWeather] = sec

	New(digest.AllDomains, testConfig(), rec).Validate(draft, testNow)

	snap := rec.Snapshot(testNow)
	if got, want := snap.QualityScore, 0.95; math.Abs(got-want) > 1e-9 {
		t.Errorf("recorded quality = %v, want %v", got, want)
	}
}
