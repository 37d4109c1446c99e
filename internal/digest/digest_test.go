package digest

import (
	"strings"
	"testing"
	"time"
)

func TestParseDomain(t *testing.T) {
	for _, d := range AllDomains {
		got, err := ParseDomain(string(d))
		if err != nil {
			t.Fatalf("ParseDomain(%q): %v", d, err)
		}
		if got != d {
			t.Errorf("ParseDomain(%q) = %q", d, got)
		}
	}
	if _, err := ParseDomain("finance"); err == nil {
		t.Error("expected an error for an unknown domain")
	}
}

func TestDomainTitle(t *testing.T) {
	if got := DomainWeather.Title(); got != "Weather" {
		t.Errorf("Title() = %q, want Weather", got)
	}
	if got := Domain("").Title(); got != "" {
		t.Errorf("Title() on empty domain = %q, want empty", got)
	}
}

func TestNewRunID(t *testing.T) {
	// Late evening Pacific time is already the next day in UTC.
	now := time.Date(2026, 8, 21, 23, 50, 0, 0, time.FixedZone("PDT", -7*3600))
	id := NewRunID(now)
	if !strings.HasPrefix(id, "2026-08-22-") {
		t.Errorf("run ID %q should start with the UTC date", id)
	}
	if len(id) != len("2006-01-02")+1+8 {
		t.Errorf("run ID %q has length %d, want %d", id, len(id), len("2006-01-02")+1+8)
	}
	if other := NewRunID(now); other == id {
		t.Error("two run IDs for the same instant should differ")
	}
}

func TestDraftCompleteness(t *testing.T) {
	d := &Draft{Sections: map[Domain]SectionResult{
		DomainWeather: {Domain: DomainWeather, Status: StatusOK},
		DomainSports:  {Domain: DomainSports, Status: StatusDegraded},
		DomainTech:    {Domain: DomainTech, Status: StatusFailed},
		DomainMarket:  {Domain: DomainMarket, Status: StatusOK},
	}}
	if got := d.Completeness(); got != 3 {
		t.Errorf("Completeness() = %d, want 3", got)
	}
}

func TestReportCounts(t *testing.T) {
	r := &Report{Issues: []Issue{
		{Domain: DomainWeather, Rule: "freshness", Severity: SeverityWarning},
		{Domain: DomainMarket, Rule: "completeness", Severity: SeverityError},
		{Domain: DomainTech, Rule: "trust", Severity: SeverityWarning},
	}}
	if got := r.Errors(); got != 1 {
		t.Errorf("Errors() = %d, want 1", got)
	}
	if got := r.Warnings(); got != 2 {
		t.Errorf("Warnings() = %d, want 2", got)
	}
}

func TestWeatherReportFacts(t *testing.T) {
	w := &WeatherReport{
		Location:   "San Jose",
		TempF:      71.4,
		FeelsLikeF: 69.8,
		Humidity:   52,
		WindMph:    6.3,
		Conditions: "clear sky",
		Forecast:   []ForecastDay{{Date: "2026-08-22", TempF: 74, Conditions: "few clouds"}},
	}
	facts := w.Facts()
	if len(facts) != 3 {
		t.Fatalf("got %d facts, want 3: %v", len(facts), facts)
	}
	if facts[0] != "San Jose: 71°F (feels like 70°F), clear sky" {
		t.Errorf("lead fact = %q", facts[0])
	}
	if facts[1] != "humidity 52%, wind 6 mph" {
		t.Errorf("conditions fact = %q", facts[1])
	}
	if !strings.HasPrefix(facts[2], "2026-08-22:") {
		t.Errorf("forecast fact = %q", facts[2])
	}
}

func TestMarketReportFacts(t *testing.T) {
	m := &MarketReport{Indexes: []IndexQuote{
		{Name: "S&P 500", Symbol: "SPY", Value: 652.31, Change: 4.12, ChangePercent: 0.64},
		{Name: "Nasdaq", Symbol: "QQQ", Value: 571.08, Change: -2.55, ChangePercent: -0.44},
	}}
	facts := m.Facts()
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2: %v", len(facts), facts)
	}
	if facts[0] != "S&P 500 (SPY) 652.31, up 4.12 (0.64%)" {
		t.Errorf("gain fact = %q", facts[0])
	}
	// Losses read as a positive magnitude with direction "down".
	if facts[1] != "Nasdaq (QQQ) 571.08, down 2.55 (0.44%)" {
		t.Errorf("loss fact = %q", facts[1])
	}
}

func TestSportsReportFacts(t *testing.T) {
	s := &SportsReport{Teams: []TeamUpdate{{
		Name:       "Warriors",
		League:     "NBA",
		Record:     "3-1",
		LatestGame: "Warriors 112 - Lakers 104 (2026-08-20)",
		NextGame:   "at Suns, 2026-08-23",
	}}}
	facts := s.Facts()
	if len(facts) != 3 {
		t.Fatalf("got %d facts, want 3: %v", len(facts), facts)
	}
	if facts[0] != "Warriors (NBA) record 3-1" {
		t.Errorf("team fact = %q", facts[0])
	}
	if !strings.HasPrefix(facts[1], "last: ") || !strings.HasPrefix(facts[2], "next: ") {
		t.Errorf("game facts = %q, %q", facts[1], facts[2])
	}
}
