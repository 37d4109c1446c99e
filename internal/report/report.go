// Package report renders the published digest into the output
// directory: a markdown document, a standalone HTML page, and JSON
// artifacts for the digest and the run metrics.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/metrics"
)

var md = goldmark.New()

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; color: #222; line-height: 1.6; }
  h1 { border-bottom: 2px solid #eee; padding-bottom: .5rem; }
  h2 { margin-top: 2rem; }
  em { color: #666; }
  hr { border: none; border-top: 1px solid #eee; margin: 2rem 0; }
  .banner { background: #fff3cd; border: 1px solid #ffe69c; padding: .5rem 1rem; border-radius: 4px; }
</style>
</head>
<body>
{{if .Degraded}}<p class="banner">Degraded digest: some sections are incomplete (quality {{.Quality}}).</p>{{end}}
{{.Body}}
</body>
</html>
`

var page = template.Must(template.New("digest").Parse(pageTemplate))

// Writer renders run artifacts into one directory. Files are written to
// a temp name and renamed, so readers never see a half-written page.
type Writer struct {
	dir string
	log *slog.Logger
}

// NewWriter creates a writer for the output directory.
func NewWriter(dir string, log *slog.Logger) *Writer {
	return &Writer{dir: dir, log: log}
}

// digestArtifact is the digest.json document: the digest itself plus
// the validation issues that shaped it.
type digestArtifact struct {
	*digest.Digest
	Issues []digest.Issue `json:"issues"`
}

// Write renders all artifacts for a published digest: digest.md,
// index.html, digest.json, and metrics.json.
func (w *Writer) Write(dig *digest.Digest, rep *digest.Report, snap metrics.Snapshot) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	markdown := RenderMarkdown(dig, rep)
	if err := writeAtomic(filepath.Join(w.dir, "digest.md"), []byte(markdown)); err != nil {
		return fmt.Errorf("writing digest.md: %w", err)
	}

	html, err := renderPage(dig, markdown)
	if err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.dir, "index.html"), html); err != nil {
		return fmt.Errorf("writing index.html: %w", err)
	}

	digestJSON, err := json.MarshalIndent(digestArtifact{Digest: dig, Issues: rep.Issues}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding digest: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.dir, "digest.json"), digestJSON); err != nil {
		return fmt.Errorf("writing digest.json: %w", err)
	}

	metricsJSON, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.dir, "metrics.json"), metricsJSON); err != nil {
		return fmt.Errorf("writing metrics.json: %w", err)
	}

	w.log.Info("artifacts written", "dir", w.dir, "run", dig.RunID)
	return nil
}

// WriteMetrics writes only metrics.json. Withheld runs update their
// metrics without touching the published digest artifacts.
func (w *Writer) WriteMetrics(snap metrics.Snapshot) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	metricsJSON, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.dir, "metrics.json"), metricsJSON); err != nil {
		return fmt.Errorf("writing metrics.json: %w", err)
	}
	w.log.Info("metrics written", "dir", w.dir, "run", snap.RunID)
	return nil
}

func renderPage(dig *digest.Digest, markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, map[string]any{
		"Title":    "Daily digest for " + dig.CreatedAt.UTC().Format("2006-01-02"),
		"Body":     template.HTML(body.String()),
		"Degraded": dig.Degraded,
		"Quality":  fmt.Sprintf("%.2f", dig.QualityScore),
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
