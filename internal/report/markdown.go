package report

import (
	"fmt"
	"strings"

	"github.com/mfriman/daybrief/internal/digest"
)

// RenderMarkdown builds the digest document. Sections follow the fixed
// domain order regardless of map iteration, so the same digest always
// renders the same text.
func RenderMarkdown(dig *digest.Digest, rep *digest.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Daily digest for %s\n\n", dig.CreatedAt.UTC().Format("Monday, January 2, 2006"))

	var statuses []string
	for _, d := range digest.AllDomains {
		sec, ok := dig.Sections[d]
		if !ok {
			continue
		}
		statuses = append(statuses, fmt.Sprintf("%s %s", d, sec.Status))
	}
	meta := fmt.Sprintf("Quality %.2f", dig.QualityScore)
	if dig.Degraded {
		meta += " (degraded publish)"
	}
	fmt.Fprintf(&b, "_%s. Sections: %s._\n", meta, strings.Join(statuses, ", "))

	for _, d := range digest.AllDomains {
		sec, ok := dig.Sections[d]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", d.Title())
		switch sec.Status {
		case digest.StatusFailed:
			reason := sec.Err
			if reason == "" {
				reason = "unknown error"
			}
			fmt.Fprintf(&b, "_No data today: %s_\n", reason)
		case digest.StatusDegraded:
			b.WriteString(sec.Narrative + "\n\n")
			b.WriteString("_Model summary unavailable; raw facts shown._\n")
		default:
			b.WriteString(sec.Narrative + "\n")
		}
	}

	if len(rep.Issues) > 0 {
		b.WriteString("\n---\n\n### Validation notes\n\n")
		for _, is := range rep.Issues {
			fmt.Fprintf(&b, "- %s/%s (%s): %s\n", is.Domain, is.Rule, is.Severity, is.Message)
		}
	}

	fmt.Fprintf(&b, "\n---\n\n_Run %s, generated %s UTC._\n",
		dig.RunID, dig.CreatedAt.UTC().Format("15:04"))

	return b.String()
}
