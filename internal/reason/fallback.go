package reason

import (
	"strings"

	"github.com/mfriman/daybrief/internal/digest"
)

var fallbackHeaders = map[digest.Domain]string{
	digest.DomainWeather: "Weather update",
	digest.DomainSports:  "Sports update",
	digest.DomainTech:    "Tech headlines",
	digest.DomainMarket:  "Market close",
}

// Fallback renders a degraded narrative directly from payload facts.
// It is a pure function of the payload: no model involved, nothing
// invented, so a degraded section never carries fabricated prose.
func Fallback(domain digest.Domain, payload digest.Payload) string {
	if payload == nil {
		return ""
	}
	facts := payload.Facts()
	if len(facts) == 0 {
		return ""
	}

	header := fallbackHeaders[domain]
	if header == "" {
		header = string(domain) + " update"
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString(": ")
	for i, f := range facts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(strings.TrimSpace(f))
	}
	b.WriteString(".")
	return b.String()
}
