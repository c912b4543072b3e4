package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Attempt is the audit record for one complete try of the pipeline against
// one zip/proxy combination. Attempts accumulate in order for the lifetime
// of a single SubmissionRequest and are sealed once appended.
type Attempt struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID            int64     `bun:",pk,autoincrement"`
	SubmissionID  string    `bun:",notnull"`
	Seq           int       `bun:",notnull"`
	Zip           string    `bun:",notnull"`
	ProxyUsername string
	EgressIP      string
	IPVerified    bool
	EgressCity    string
	EgressPostal  string
	LeadID        string
	Success       bool        `bun:",notnull"`
	Failure       FailureKind `bun:"failure_kind"`
	Detail        string
	StartedAt     time.Time `bun:",notnull"`
	FinishedAt    time.Time `bun:",notnull"`
}

// NearbyZipCandidate is one fallback zip produced by the geolocator,
// tagged with its great-circle distance from the origin zip.
type NearbyZipCandidate struct {
	Zip           string
	DistanceMiles float64
}

// SubmissionOutcome is the terminal result handed back to the caller: the
// overall verdict plus the full attempt sequence for diagnostics. The core
// holds no reference to it after return.
type SubmissionOutcome struct {
	SubmissionID string
	Success      bool
	FinalZip     string
	EgressIP     string
	IPVerified   bool
	LeadID       string
	Message      string
	Attempts     []Attempt
}
