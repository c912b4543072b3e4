package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lead-submitter/pkg/models"
)

type fakeRunner struct {
	outcome *models.SubmissionOutcome
	calls   int
	lastReq models.SubmissionRequest
}

func (r *fakeRunner) Run(_ context.Context, req models.SubmissionRequest) *models.SubmissionOutcome {
	r.calls++
	r.lastReq = req
	if r.outcome != nil {
		return r.outcome
	}
	return &models.SubmissionOutcome{SubmissionID: req.ID, Success: true, Message: "submitted"}
}

func newTestServer(t *testing.T, runner Runner) http.Handler {
	t.Helper()
	s, err := New(runner, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s.Router()
}

func postForm(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetRendersForm(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="full_name"`) {
		t.Error("form page missing full_name input")
	}
}

func TestPostValidation(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		wantMsg  string
		wantRuns int
	}{
		{
			name:     "missing fields",
			form:     url.Values{"full_name": {"Jane Doe"}},
			wantMsg:  "required",
			wantRuns: 0,
		},
		{
			name: "single word name",
			form: url.Values{
				"full_name": {"Jane"}, "phone": {"5551234567"}, "zip_code": {"10001"},
			},
			wantMsg:  "first and last name",
			wantRuns: 0,
		},
		{
			name: "short phone",
			form: url.Values{
				"full_name": {"Jane Doe"}, "phone": {"555123"}, "zip_code": {"10001"},
			},
			wantMsg:  "10 digits",
			wantRuns: 0,
		},
		{
			name: "bad zip",
			form: url.Values{
				"full_name": {"Jane Doe"}, "phone": {"5551234567"}, "zip_code": {"1000a"},
			},
			wantMsg:  "5 digits",
			wantRuns: 0,
		},
		{
			name: "valid input runs pipeline",
			form: url.Values{
				"full_name": {"Jane Doe"}, "phone": {"5551234567"}, "zip_code": {"10001"},
			},
			wantMsg:  "submitted",
			wantRuns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			h := newTestServer(t, runner)
			rec := postForm(t, h, tt.form)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body missing %q", tt.wantMsg)
			}
			if runner.calls != tt.wantRuns {
				t.Errorf("runner invoked %d times, want %d", runner.calls, tt.wantRuns)
			}
		})
	}
}

func TestPostRendersAttemptHistory(t *testing.T) {
	runner := &fakeRunner{outcome: &models.SubmissionOutcome{
		Success:    true,
		FinalZip:   "10003",
		EgressIP:   "45.33.12.7",
		IPVerified: true,
		Message:    "submitted successfully via zip 10003",
		Attempts: []models.Attempt{
			{Seq: 1, Zip: "10001", Failure: models.FailureConnectTimeout, Detail: "tunnel failed"},
			{Seq: 2, Zip: "10003", Success: true, EgressIP: "45.33.12.7", IPVerified: true},
		},
	}}
	h := newTestServer(t, runner)

	rec := postForm(t, h, url.Values{
		"full_name": {"Jane Doe"}, "phone": {"5551234567"}, "zip_code": {"10001"},
	})

	body := rec.Body.String()
	for _, want := range []string{"10003", "45.33.12.7", "connect_timeout", "tunnel failed"} {
		if !strings.Contains(body, want) {
			t.Errorf("attempt history missing %q", want)
		}
	}
	if runner.lastReq.Zip != "10001" {
		t.Errorf("pipeline received zip %q, want the submitted 10001", runner.lastReq.Zip)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
