// Package reason turns fetched facts into narrative text through an LLM
// provider, with deterministic fallbacks when the model is unavailable.
package reason

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/llm"
	"github.com/mfriman/daybrief/internal/metrics"
)

const sectionPrompt = `You are writing the %s section of a short daily digest.

Facts gathered today:
%s

Write a 2-3 sentence narrative that summarizes these facts in plain, conversational language. Use only the facts above. Do not add information, speculation, or advice. Respond with ONLY the narrative text.`

// ErrNotConfigured is returned when no LLM provider is usable. It is
// permanent: the worker degrades to the fallback narrative immediately.
var ErrNotConfigured = errors.New("no LLM provider configured")

// errEmptyNarrative marks a well-formed response with no usable text.
var errEmptyNarrative = errors.New("empty narrative")

var sectionLabels = map[digest.Domain]string{
	digest.DomainWeather: "weather",
	digest.DomainSports:  "sports",
	digest.DomainTech:    "tech news",
	digest.DomainMarket:  "market",
}

// costPer1KTokens estimates USD cost per provider model. Local models
// cost nothing.
var costPer1KTokens = map[string]float64{
	"gpt-4o-mini": 0.0004,
	"gpt-4o":      0.0075,
}

// Reasoner is the summarization capability the workers invoke. It
// reports token usage and estimated cost to the run's recorder.
type Reasoner struct {
	provider  llm.Provider
	maxTokens int
	rec       *metrics.Recorder
}

// New creates a reasoner over a provider. A nil provider is allowed and
// makes every Summarize call fail with ErrNotConfigured.
func New(provider llm.Provider, maxTokens int, rec *metrics.Recorder) *Reasoner {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &Reasoner{provider: provider, maxTokens: maxTokens, rec: rec}
}

// Summarize produces narrative text for one domain's payload.
func (r *Reasoner) Summarize(ctx context.Context, domain digest.Domain, payload digest.Payload) (string, error) {
	if r.provider == nil {
		return "", ErrNotConfigured
	}

	facts := payload.Facts()
	if len(facts) == 0 {
		return "", fmt.Errorf("%s: payload has no facts to summarize", domain)
	}

	label := sectionLabels[domain]
	if label == "" {
		label = string(domain)
	}
	prompt := fmt.Sprintf(sectionPrompt, label, formatFacts(facts))

	completion, err := r.provider.Generate(ctx, prompt, r.maxTokens)
	if err != nil {
		return "", err
	}

	if r.rec != nil && completion.Tokens > 0 {
		r.rec.Usage(completion.Tokens, estimateCost(r.provider, completion.Tokens))
	}

	narrative := llm.CleanResponse(completion.Text)
	if narrative == "" {
		return "", fmt.Errorf("%s from %s: %w", domain, r.provider.Name(), errEmptyNarrative)
	}
	return narrative, nil
}

// Retryable classifies reasoner errors: rate limits, transient server
// errors, network failures, and empty responses are worth another
// attempt; malformed input and missing configuration are not.
func Retryable(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, errEmptyNarrative) {
		return true
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 429 || statusErr.Status >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func formatFacts(facts []string) string {
	var lines []string
	for _, f := range facts {
		lines = append(lines, "- "+f)
	}
	return strings.Join(lines, "\n")
}

func estimateCost(p llm.Provider, tokens int) float64 {
	if p.Name() == "ollama" {
		return 0
	}
	rate, ok := costPer1KTokens[modelOf(p)]
	if !ok {
		rate = 0.001
	}
	return float64(tokens) / 1000 * rate
}

func modelOf(p llm.Provider) string {
	if o, ok := p.(*llm.OpenAIProvider); ok {
		return o.Model
	}
	return ""
}
