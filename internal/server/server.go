// Package server serves the digest history over HTTP: the latest
// published digest, the run archive, and per-run metrics.
package server

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/metrics"
	"github.com/mfriman/daybrief/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server is the HTTP server over the run store.
type Server struct {
	db    *store.Store
	pages map[string]*template.Template
	mux   *http.ServeMux
	log   *slog.Logger
}

// New creates a server over the store.
func New(db *store.Store, log *slog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"score": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"millis": formatMillis,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into
	// the clone. This gives each page its own {{define "content"}}
	// and {{define "title"}}.
	pageNames := []string{"index.html", "runs.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux(), log: log}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/runs", s.handleRuns)
	s.mux.HandleFunc("/runs/", s.handleRun)
	s.mux.HandleFunc("/metrics/", s.handleMetrics)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	run, err := s.db.LatestPublished()
	if err != nil {
		s.log.Error("loading latest run", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{"Run": run}
	if run != nil {
		sections, err := s.db.GetSections(run.ID)
		if err != nil {
			s.log.Error("loading sections", "run", run.ID, "err", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		issues, err := s.db.GetIssues(run.ID)
		if err != nil {
			s.log.Error("loading issues", "run", run.ID, "err", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		data["Sections"] = sections
		data["Issues"] = issues
	}

	s.render(w, "index.html", data)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(store.HistoryFilter{Limit: 50})
	if err != nil {
		s.log.Error("listing runs", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "runs.html", map[string]any{"Runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" {
		http.Redirect(w, r, "/runs", http.StatusFound)
		return
	}

	run, err := s.db.GetRun(id)
	if err != nil {
		s.log.Error("loading run", "run", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}

	sections, err := s.db.GetSections(id)
	if err != nil {
		s.log.Error("loading sections", "run", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	issues, err := s.db.GetIssues(id)
	if err != nil {
		s.log.Error("loading issues", "run", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "run.html", map[string]any{
		"Run":      run,
		"Sections": sections,
		"Issues":   issues,
	})
}

// handleMetrics serves /metrics/{id}.json, rebuilding the snapshot from
// the persisted run and section rows.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/metrics/")
	id = strings.TrimSuffix(id, ".json")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	run, err := s.db.GetRun(id)
	if err != nil {
		s.log.Error("loading run", "run", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	sections, err := s.db.GetSections(id)
	if err != nil {
		s.log.Error("loading sections", "run", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	snap := snapshotFromRows(run, sections)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Error("encoding metrics", "run", id, "err", err)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", "name", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Error("rendering template", "name", name, "err", err)
	}
}

func snapshotFromRows(run *store.Run, sections []store.Section) metrics.Snapshot {
	snap := metrics.Snapshot{
		RunID:             run.ID,
		TotalDurationMs:   run.DurationMs,
		PerDomainDuration: make(map[digest.Domain]int64, len(sections)),
		PerDomainStatus:   make(map[digest.Domain]string, len(sections)),
		InvocationMs:      map[string]int64{},
		TokenCount:        run.TokenCount,
		EstimatedCostUSD:  run.CostUSD,
		ErrorCount:        run.ErrorCount,
		RetryCount:        run.RetryCount,
		QualityScore:      run.QualityScore,
	}
	for _, sec := range sections {
		snap.PerDomainDuration[digest.Domain(sec.Domain)] = sec.DurationMs
		snap.PerDomainStatus[digest.Domain(sec.Domain)] = sec.Status
	}
	return snap
}

func formatMillis(ms int64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

// Serve starts the HTTP server on the given port.
func Serve(db *store.Store, port int, log *slog.Logger) error {
	srv, err := New(db, log)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Info("server listening", "url", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
