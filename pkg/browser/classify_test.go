package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lead-submitter/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback models.FailureKind
		want     models.FailureKind
	}{
		{
			name: "nil error",
			want: models.FailureNone,
		},
		{
			name:     "chromium tunnel error",
			err:      errors.New("page load failed: net::ERR_TUNNEL_CONNECTION_FAILED"),
			fallback: models.FailureNavigationFailed,
			want:     models.FailureConnectTimeout,
		},
		{
			name:     "launcher proxy error",
			err:      errors.New("could not connect to proxy server"),
			fallback: models.FailureUnknown,
			want:     models.FailureConnectTimeout,
		},
		{
			name:     "broken pipe to gateway",
			err:      errors.New("write: EPIPE"),
			fallback: models.FailureUnknown,
			want:     models.FailureConnectTimeout,
		},
		{
			name:     "navigation timeout keeps phase kind",
			err:      fmt.Errorf("navigate: %w", context.DeadlineExceeded),
			fallback: models.FailureNavigationFailed,
			want:     models.FailureNavigationFailed,
		},
		{
			name:     "script wait timeout keeps phase kind",
			err:      context.DeadlineExceeded,
			fallback: models.FailureScriptTimeout,
			want:     models.FailureScriptTimeout,
		},
		{
			name:     "soft phase stays soft on generic error",
			err:      errors.New("element not found"),
			fallback: models.FailureNone,
			want:     models.FailureNone,
		},
		{
			name:     "generic error falls back to unknown",
			err:      errors.New("target crashed"),
			fallback: models.FailureUnknown,
			want:     models.FailureUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err, tt.fallback); got != tt.want {
				t.Errorf("classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailureKindRetryEligibility(t *testing.T) {
	tests := []struct {
		kind models.FailureKind
		want bool
	}{
		{models.FailureConnectTimeout, true},
		{models.FailureNavigationFailed, true},
		{models.FailureScriptTimeout, true},
		{models.FailureUnknown, true},
		{models.FailureSubmissionRejected, false},
		{models.FailureUnknownZip, false},
		{models.FailureNone, false},
	}
	for _, tt := range tests {
		if got := tt.kind.RetryEligible(); got != tt.want {
			t.Errorf("RetryEligible(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
