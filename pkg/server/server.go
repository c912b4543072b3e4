// Package server is the thin HTTP boundary in front of the submission
// pipeline: it renders the lead form, validates input, and runs one
// synchronous submission per POST.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lead-submitter/pkg/models"
)

//go:embed templates/form.html
var templateFS embed.FS

var (
	phoneRe = regexp.MustCompile(`^\d{10}$`)
	zipRe   = regexp.MustCompile(`^\d{5}$`)
)

// Runner processes one validated submission to a terminal outcome.
type Runner interface {
	Run(ctx context.Context, req models.SubmissionRequest) *models.SubmissionOutcome
}

type flash struct {
	Level string // success, warning, error
	Text  string
}

type formPage struct {
	Flashes  []flash
	FullName string
	Phone    string
	Zip      string
	Outcome  *models.SubmissionOutcome
}

type Server struct {
	runner Runner
	logger *slog.Logger
	tmpl   *template.Template
}

func New(runner Runner, logger *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/form.html")
	if err != nil {
		return nil, fmt.Errorf("parse form template: %w", err)
	}
	return &Server{runner: runner, logger: logger, tmpl: tmpl}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", s.handleForm)
	r.Post("/", s.handleSubmit)
	return r
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, formPage{})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form data", http.StatusBadRequest)
		return
	}

	page := formPage{
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Phone:    strings.TrimSpace(r.PostFormValue("phone")),
		Zip:      strings.TrimSpace(r.PostFormValue("zip_code")),
	}

	if msgs := validate(page.FullName, page.Phone, page.Zip); len(msgs) > 0 {
		for _, m := range msgs {
			page.Flashes = append(page.Flashes, flash{Level: "error", Text: m})
		}
		s.render(w, page)
		return
	}

	req := models.NewSubmissionRequest(page.FullName, page.Phone, page.Zip)
	s.logger.Info("starting form submission",
		"submissionID", req.ID,
		"zip", req.Zip)

	// The request context propagates a client disconnect into the pipeline
	// so the active browser session is torn down promptly.
	outcome := s.runner.Run(r.Context(), req)
	page.Outcome = outcome

	if outcome.Success {
		level := "success"
		if !outcome.IPVerified {
			level = "warning"
		}
		page.Flashes = append(page.Flashes, flash{Level: level, Text: outcome.Message})
	} else {
		page.Flashes = append(page.Flashes, flash{Level: "error", Text: outcome.Message})
	}

	s.logger.Info("submission finished",
		"submissionID", req.ID,
		"success", outcome.Success,
		"finalZip", outcome.FinalZip,
		"attempts", len(outcome.Attempts))
	s.render(w, page)
}

// validate enforces the boundary invariants; nothing downstream
// re-validates these formats.
func validate(fullName, phone, zip string) []string {
	var msgs []string
	if fullName == "" || phone == "" || zip == "" {
		msgs = append(msgs, "All fields (Full Name, Phone, Zip Code) are required.")
		return msgs
	}
	if !strings.Contains(fullName, " ") {
		msgs = append(msgs, "Please enter both first and last name in Full Name.")
	}
	if !phoneRe.MatchString(phone) {
		msgs = append(msgs, "Phone must be exactly 10 digits.")
	}
	if !zipRe.MatchString(zip) {
		msgs = append(msgs, "Zip Code must be exactly 5 digits.")
	}
	return msgs
}

func (s *Server) render(w http.ResponseWriter, page formPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, page); err != nil {
		s.logger.Error("template render failed", "error", err)
	}
}
