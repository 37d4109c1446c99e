package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
)

const (
	sportsSource = "www.thesportsdb.com"
	sportsDBURL  = "https://www.thesportsdb.com/api/v1/json"
)

// TeamConfig names one followed team and its league.
type TeamConfig struct {
	Name   string
	League string
}

// SportsFetcher queries TheSportsDB for each configured team's latest
// result and next fixture.
type SportsFetcher struct {
	teams   []TeamConfig
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewSportsFetcher binds the fetcher to the followed teams. Without an
// API key the free-tier key is used.
func NewSportsFetcher(teams []TeamConfig, apiKeyEnv string, log *slog.Logger) *SportsFetcher {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		apiKey = "3" // TheSportsDB free tier
	}
	return &SportsFetcher{
		teams:   teams,
		apiKey:  apiKey,
		baseURL: sportsDBURL,
		client:  newHTTPClient(),
		log:     log,
	}
}

func (f *SportsFetcher) Domain() digest.Domain { return digest.DomainSports }

// Fetch collects one TeamUpdate per configured team. Teams that fail to
// resolve are skipped; the fetch fails only when no team yields data.
func (f *SportsFetcher) Fetch(ctx context.Context) (*digest.FetchResult, error) {
	report := &digest.SportsReport{}
	var lastErr error

	for _, tc := range f.teams {
		update, err := f.fetchTeam(ctx, tc)
		if err != nil {
			f.log.Warn("team lookup failed", "team", tc.Name, "err", err)
			lastErr = err
			continue
		}
		report.Teams = append(report.Teams, *update)
	}

	if len(report.Teams) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &RequestError{Source: sportsSource, Message: "no teams configured"}
	}

	return &digest.FetchResult{
		Source:    sportsSource,
		FetchedAt: time.Now().UTC(),
		Payload:   report,
	}, nil
}

func (f *SportsFetcher) fetchTeam(ctx context.Context, tc TeamConfig) (*digest.TeamUpdate, error) {
	teamID, teamName, err := f.lookupTeam(ctx, tc)
	if err != nil {
		return nil, err
	}

	update := &digest.TeamUpdate{Name: teamName, League: tc.League}

	// Last result and next fixture are best-effort once the team resolved.
	if last := f.lastEvent(ctx, teamID); last != "" {
		update.LatestGame = last
	}
	if next := f.nextEvent(ctx, teamID); next != "" {
		update.NextGame = next
	}
	return update, nil
}

func (f *SportsFetcher) lookupTeam(ctx context.Context, tc TeamConfig) (id, name string, err error) {
	var result struct {
		Teams []struct {
			IDTeam    string `json:"idTeam"`
			StrTeam   string `json:"strTeam"`
			StrLeague string `json:"strLeague"`
		} `json:"teams"`
	}
	u := f.apiURL("searchteams.php", url.Values{"t": {tc.Name}})
	if err := getJSON(ctx, f.client, sportsSource, u, &result); err != nil {
		return "", "", err
	}
	if len(result.Teams) == 0 {
		return "", "", fmt.Errorf("team %q not found", tc.Name)
	}

	// Several leagues can share a team name; prefer the configured one.
	for _, t := range result.Teams {
		if tc.League == "" || strings.Contains(strings.ToLower(t.StrLeague), strings.ToLower(tc.League)) {
			return t.IDTeam, t.StrTeam, nil
		}
	}
	return result.Teams[0].IDTeam, result.Teams[0].StrTeam, nil
}

func (f *SportsFetcher) lastEvent(ctx context.Context, teamID string) string {
	var result struct {
		Results []struct {
			StrHomeTeam  string `json:"strHomeTeam"`
			StrAwayTeam  string `json:"strAwayTeam"`
			IntHomeScore string `json:"intHomeScore"`
			IntAwayScore string `json:"intAwayScore"`
			DateEvent    string `json:"dateEvent"`
		} `json:"results"`
	}
	u := f.apiURL("eventslast.php", url.Values{"id": {teamID}})
	if err := getJSON(ctx, f.client, sportsSource, u, &result); err != nil || len(result.Results) == 0 {
		return ""
	}

	ev := result.Results[0]
	if ev.IntHomeScore == "" || ev.IntAwayScore == "" {
		return ""
	}
	return fmt.Sprintf("%s %s-%s %s (%s)", ev.StrHomeTeam, ev.IntHomeScore, ev.IntAwayScore, ev.StrAwayTeam, ev.DateEvent)
}

func (f *SportsFetcher) nextEvent(ctx context.Context, teamID string) string {
	var result struct {
		Events []struct {
			StrEvent  string `json:"strEvent"`
			DateEvent string `json:"dateEvent"`
		} `json:"events"`
	}
	u := f.apiURL("eventsnext.php", url.Values{"id": {teamID}})
	if err := getJSON(ctx, f.client, sportsSource, u, &result); err != nil || len(result.Events) == 0 {
		return ""
	}

	ev := result.Events[0]
	if ev.DateEvent == "" {
		return ev.StrEvent
	}
	return fmt.Sprintf("%s on %s", ev.StrEvent, ev.DateEvent)
}

func (f *SportsFetcher) apiURL(endpoint string, params url.Values) string {
	return fmt.Sprintf("%s/%s/%s?%s", f.baseURL, f.apiKey, endpoint, params.Encode())
}
