package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/mfriman/daybrief/internal/digest"
)

const (
	maxSummaryChars  = 200
	maxTopStoryChars = 500
)

// TechFetcher pulls stories from the configured RSS/Atom feeds and keeps
// the ones matching the topic keywords.
type TechFetcher struct {
	feeds      []string
	topics     []string
	maxStories int
	fetchTop   bool
	parser     *gofeed.Parser
	client     *http.Client
	log        *slog.Logger
}

// NewTechFetcher binds the fetcher to its feeds and topics.
func NewTechFetcher(feeds, topics []string, maxStories int, fetchTop bool, log *slog.Logger) *TechFetcher {
	if maxStories <= 0 {
		maxStories = 5
	}
	return &TechFetcher{
		feeds:      feeds,
		topics:     topics,
		maxStories: maxStories,
		fetchTop:   fetchTop,
		parser:     gofeed.NewParser(),
		client:     newHTTPClient(),
		log:        log,
	}
}

func (f *TechFetcher) Domain() digest.Domain { return digest.DomainTech }

// Fetch parses every feed, filters by topic, and returns the newest
// stories. Individual feed failures degrade to the remaining feeds; the
// fetch fails only when nothing matched anywhere.
func (f *TechFetcher) Fetch(ctx context.Context) (*digest.FetchResult, error) {
	type candidate struct {
		story     digest.Story
		published time.Time
	}

	var candidates []candidate
	hosts := make(map[string]struct{})
	var lastErr error

	for _, feedURL := range f.feeds {
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			f.log.Warn("feed parse failed", "feed", feedURL, "err", err)
			lastErr = err
			continue
		}

		feedName := feed.Title
		if feedName == "" {
			feedName = feedHost(feedURL)
		}

		for _, item := range feed.Items {
			if !f.matchesTopics(item) {
				continue
			}
			story := digest.Story{
				Title:   strings.TrimSpace(item.Title),
				URL:     item.Link,
				Feed:    feedName,
				Summary: truncate(cleanHTML(item.Description), maxSummaryChars),
			}
			if story.Title == "" || story.URL == "" {
				continue
			}

			var published time.Time
			if item.PublishedParsed != nil {
				published = *item.PublishedParsed
			} else if item.UpdatedParsed != nil {
				published = *item.UpdatedParsed
			}
			if !published.IsZero() {
				story.Published = published.UTC().Format("2006-01-02")
			}

			candidates = append(candidates, candidate{story: story, published: published})
			hosts[feedHost(feedURL)] = struct{}{}
		}
	}

	if len(candidates) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &RequestError{Source: "rss", Message: "no stories matched the configured topics"}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].published.After(candidates[j].published)
	})

	report := &digest.TechReport{}
	for _, c := range candidates {
		report.Stories = append(report.Stories, c.story)
	}
	report.Stories = dedupeStories(report.Stories)
	if len(report.Stories) > f.maxStories {
		report.Stories = report.Stories[:f.maxStories]
	}

	if f.fetchTop {
		report.TopStory = f.extractStory(ctx, report.Stories[0].URL)
	}

	fetchedAt := time.Now().UTC()
	if newest := candidates[0].published; !newest.IsZero() {
		fetchedAt = newest.UTC()
	}

	var sources []string
	for h := range hosts {
		sources = append(sources, h)
	}
	sort.Strings(sources)

	return &digest.FetchResult{
		Source:    strings.Join(sources, ", "),
		FetchedAt: fetchedAt,
		Payload:   report,
	}, nil
}

func (f *TechFetcher) matchesTopics(item *gofeed.Item) bool {
	if len(f.topics) == 0 {
		return true
	}
	text := strings.ToLower(item.Title + " " + item.Description)
	for _, topic := range f.topics {
		if strings.Contains(text, strings.ToLower(topic)) {
			return true
		}
	}
	return false
}

// extractStory pulls the readable text of the lead story. Extraction is
// best-effort: failures leave the field empty.
func (f *TechFetcher) extractStory(ctx context.Context, storyURL string) string {
	req, err := http.NewRequestWithContext(ctx, "GET", storyURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "daybrief/1.0 (daily digest)")

	resp, err := f.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	parsedURL, _ := url.Parse(storyURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		f.log.Debug("readability extraction failed", "url", storyURL, "err", err)
		return ""
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < 100 {
		return ""
	}
	return truncate(text, maxTopStoryChars)
}

// titleStopWords are ignored when comparing story titles.
var titleStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"to": true, "of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "and": true, "but": true,
	"or": true, "not": true, "its": true, "it": true, "this": true, "that": true,
	"new": true, "how": true, "what": true, "after": true, "will": true,
}

// dedupeStories drops stories that retell one already kept. Different
// feeds routinely cover the same event within hours; the newest telling
// wins because the input is sorted newest first.
func dedupeStories(stories []digest.Story) []digest.Story {
	var kept []digest.Story
	var keptTokens []map[string]bool

	for _, s := range stories {
		tokens := titleTokens(s.Title)
		dup := false
		for _, k := range keptTokens {
			if titleSimilarity(tokens, k) >= 0.5 {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, s)
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}

func titleTokens(title string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.Trim(w, ".,!?:;\"'()-[]")
		if len(w) > 2 && !titleStopWords[w] {
			tokens[w] = true
		}
	}
	return tokens
}

// titleSimilarity is the Jaccard index of two token sets.
func titleSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// cleanHTML turns feed description markup into plain text.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

func feedHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "feeds.", "rss."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}
