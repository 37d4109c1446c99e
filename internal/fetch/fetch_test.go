package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
)

type stubFetcher struct {
	domain digest.Domain
}

func (s *stubFetcher) Domain() digest.Domain { return s.domain }
func (s *stubFetcher) Fetch(context.Context) (*digest.FetchResult, error) {
	return nil, errors.New("stub")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubFetcher{domain: digest.DomainWeather}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&stubFetcher{domain: digest.DomainTech}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f, err := r.Resolve(digest.DomainWeather)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if f.Domain() != digest.DomainWeather {
		t.Errorf("resolved domain = %q", f.Domain())
	}

	if _, err := r.Resolve(digest.DomainMarket); err == nil {
		t.Error("expected error resolving unregistered domain")
	}

	domains := r.Domains()
	if len(domains) != 2 || domains[0] != digest.DomainWeather || domains[1] != digest.DomainTech {
		t.Errorf("Domains() = %v, want registration order", domains)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubFetcher{domain: digest.DomainSports}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&stubFetcher{domain: digest.DomainSports}); err == nil {
		t.Fatal("expected error registering a duplicate domain")
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", statusError("api", 429), true},
		{"server error", statusError("api", 503), true},
		{"auth failure", statusError("api", 401), false},
		{"bad request", statusError("api", 400), false},
		{"missing key", keyMissingError("api", "SOME_KEY"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("%s: Retryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWeatherFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/weather":
			io.WriteString(w, `{"dt": 1756000000,
				"main": {"temp": 72.5, "feels_like": 70.1, "humidity": 55},
				"weather": [{"description": "clear sky"}],
				"wind": {"speed": 8.2}}`)
		case "/forecast":
			io.WriteString(w, `{"list": [
				{"dt_txt": "2026-08-24 09:00:00", "main": {"temp": 60}, "weather": [{"description": "mist"}]},
				{"dt_txt": "2026-08-24 12:00:00", "main": {"temp": 75.3}, "weather": [{"description": "sunny"}]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewWeatherFetcher("San Jose,US", "imperial", "UNSET_TEST_KEY")
	f.apiKey = "test-key"
	f.baseURL = srv.URL

	result, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Source != weatherSource {
		t.Errorf("Source = %q, want %q", result.Source, weatherSource)
	}
	if got := result.FetchedAt.Unix(); got != 1756000000 {
		t.Errorf("FetchedAt = %d, want the dt field", got)
	}

	report, ok := result.Payload.(*digest.WeatherReport)
	if !ok {
		t.Fatalf("payload is %T, want *WeatherReport", result.Payload)
	}
	if report.TempF != 72.5 || report.Conditions != "clear sky" {
		t.Errorf("report = %+v", report)
	}
	if len(report.Forecast) != 1 || report.Forecast[0].Date != "2026-08-24" || report.Forecast[0].Conditions != "sunny" {
		t.Errorf("forecast = %+v, want only the midday sample", report.Forecast)
	}
}

func TestWeatherFetchMissingKey(t *testing.T) {
	f := NewWeatherFetcher("San Jose,US", "", "DEFINITELY_UNSET_KEY_VAR")

	_, err := f.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error without an API key")
	}
	if Retryable(err) {
		t.Error("missing API key must be permanent")
	}
}

func TestMarketFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Global Quote": {
			"01. symbol": "^GSPC",
			"05. price": "6432.10",
			"07. latest trading day": "2026-08-21",
			"09. change": "-12.40",
			"10. change percent": "-0.19%"}}`)
	}))
	defer srv.Close()

	f := NewMarketFetcher([]string{"^GSPC"}, "UNSET_TEST_KEY")
	f.apiKey = "test-key"
	f.baseURL = srv.URL

	result, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	report, ok := result.Payload.(*digest.MarketReport)
	if !ok {
		t.Fatalf("payload is %T, want *MarketReport", result.Payload)
	}
	if len(report.Indexes) != 1 {
		t.Fatalf("got %d indexes, want 1", len(report.Indexes))
	}
	ix := report.Indexes[0]
	if ix.Name != "S&P 500" || ix.Value != 6432.10 || ix.Change != -12.40 || ix.ChangePercent != -0.19 {
		t.Errorf("quote = %+v", ix)
	}

	wantDay := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	if !result.FetchedAt.Equal(wantDay) {
		t.Errorf("FetchedAt = %v, want trading day close %v", result.FetchedAt, wantDay)
	}
}

func TestMarketFetchThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Note": "API call frequency exceeded"}`)
	}))
	defer srv.Close()

	f := NewMarketFetcher([]string{"^GSPC"}, "UNSET_TEST_KEY")
	f.apiKey = "test-key"
	f.baseURL = srv.URL

	_, err := f.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected throttle error")
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error is %T, want *RequestError", err)
	}
	if !reqErr.Retryable {
		t.Error("throttle note must be retryable")
	}
}

func TestSportsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/key/searchteams.php":
			io.WriteString(w, `{"teams": [
				{"idTeam": "99", "strTeam": "San Jose Sharks", "strLeague": "NHL"}]}`)
		case r.URL.Path == "/key/eventslast.php":
			io.WriteString(w, `{"results": [
				{"strHomeTeam": "San Jose Sharks", "strAwayTeam": "Anaheim Ducks",
				 "intHomeScore": "4", "intAwayScore": "2", "dateEvent": "2026-08-20"}]}`)
		case r.URL.Path == "/key/eventsnext.php":
			io.WriteString(w, `{"events": [
				{"strEvent": "San Jose Sharks vs Vegas Golden Knights", "dateEvent": "2026-08-25"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewSportsFetcher([]TeamConfig{{Name: "Sharks", League: "NHL"}}, "UNSET_TEST_KEY", quietLogger())
	f.apiKey = "key"
	f.baseURL = srv.URL

	result, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	report, ok := result.Payload.(*digest.SportsReport)
	if !ok {
		t.Fatalf("payload is %T, want *SportsReport", result.Payload)
	}
	if len(report.Teams) != 1 {
		t.Fatalf("got %d teams, want 1", len(report.Teams))
	}
	team := report.Teams[0]
	if team.Name != "San Jose Sharks" || team.League != "NHL" {
		t.Errorf("team = %+v", team)
	}
	if team.LatestGame != "San Jose Sharks 4-2 Anaheim Ducks (2026-08-20)" {
		t.Errorf("LatestGame = %q", team.LatestGame)
	}
	if team.NextGame != "San Jose Sharks vs Vegas Golden Knights on 2026-08-25" {
		t.Errorf("NextGame = %q", team.NextGame)
	}
}

func TestTechFetch(t *testing.T) {
	techCrunch := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>TechCrunch</title>
<item>
  <title>New AI inference chips ship to datacenters</title>
  <link>https://techcrunch.com/chips</link>
  <description>Another generation of accelerators lands.</description>
  <pubDate>Fri, 21 Aug 2026 15:00:00 GMT</pubDate>
</item>
<item>
  <title>Gardening robots for late summer</title>
  <link>https://techcrunch.com/gardening</link>
  <description>Lawn care.</description>
  <pubDate>Fri, 21 Aug 2026 14:00:00 GMT</pubDate>
</item>
</channel></rss>`
	verge := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>The Verge</title>
<item>
  <title>AI inference chips ship to datacenters this week</title>
  <link>https://theverge.com/chips</link>
  <description>The same accelerators, covered again.</description>
  <pubDate>Fri, 21 Aug 2026 14:30:00 GMT</pubDate>
</item>
<item>
  <title>Security flaw found in popular router firmware</title>
  <link>https://theverge.com/router</link>
  <description>Patch now.</description>
  <pubDate>Fri, 21 Aug 2026 13:00:00 GMT</pubDate>
</item>
</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tc":
			io.WriteString(w, techCrunch)
		case "/verge":
			io.WriteString(w, verge)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	feeds := []string{srv.URL + "/tc", srv.URL + "/verge", srv.URL + "/broken"}
	f := NewTechFetcher(feeds, []string{"ai", "security"}, 5, false, quietLogger())

	result, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	report, ok := result.Payload.(*digest.TechReport)
	if !ok {
		t.Fatalf("payload is %T, want *TechReport", result.Payload)
	}

	// The gardening item misses the topics, the Verge chips item is a
	// duplicate of the newer TechCrunch one, and the broken feed only
	// warns.
	if len(report.Stories) != 2 {
		t.Fatalf("stories = %+v, want 2", report.Stories)
	}
	if report.Stories[0].Title != "New AI inference chips ship to datacenters" {
		t.Errorf("lead story = %q", report.Stories[0].Title)
	}
	if report.Stories[0].Feed != "TechCrunch" || report.Stories[0].Published != "2026-08-21" {
		t.Errorf("lead story meta = %+v", report.Stories[0])
	}
	if report.Stories[1].Title != "Security flaw found in popular router firmware" {
		t.Errorf("second story = %q", report.Stories[1].Title)
	}

	want := time.Date(2026, 8, 21, 15, 0, 0, 0, time.UTC)
	if !result.FetchedAt.Equal(want) {
		t.Errorf("FetchedAt = %v, want newest story time %v", result.FetchedAt, want)
	}
}

func TestTechFetchNothingMatches(t *testing.T) {
	empty := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Feed</title>
<item><title>Cooking show renewed</title><link>https://x.test/a</link></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, empty)
	}))
	defer srv.Close()

	f := NewTechFetcher([]string{srv.URL}, []string{"quantum"}, 5, false, quietLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("expected error when no story matches the topics")
	}
}

func TestDedupeStories(t *testing.T) {
	stories := []digest.Story{
		{Title: "Apple unveils M5 chip at fall event"},
		{Title: "Apple unveils M5 chip during fall event"},
		{Title: "Chipmaker posts record quarter"},
	}

	got := dedupeStories(stories)
	if len(got) != 2 {
		t.Fatalf("got %d stories, want 2: %+v", len(got), got)
	}
	if got[0].Title != stories[0].Title {
		t.Errorf("kept %q, want first telling", got[0].Title)
	}
	if got[1].Title != "Chipmaker posts record quarter" {
		t.Errorf("kept %q, want the unrelated story", got[1].Title)
	}
}

func TestCleanHTML(t *testing.T) {
	got := cleanHTML(`<p>Hello <b>world</b>&nbsp;again</p>`)
	if got != "Hello world again" {
		t.Errorf("cleanHTML = %q", got)
	}
}

func TestTruncateBreaksOnWord(t *testing.T) {
	got := truncate("one two three four", 10)
	if got != "one two…" {
		t.Errorf("truncate = %q", got)
	}
	if s := truncate("short", 10); s != "short" {
		t.Errorf("truncate left %q", s)
	}
}

func TestFeedHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://techcrunch.com/feed/", "techcrunch.com"},
		{"https://feeds.arstechnica.com/arstechnica/index", "arstechnica.com"},
		{"https://www.theverge.com/rss/index.xml", "theverge.com"},
	}
	for _, tt := range tests {
		if got := feedHost(tt.url); got != tt.want {
			t.Errorf("feedHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
