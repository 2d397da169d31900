package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RUN HISTORY
// =============================================================================
// Runs are append-only. A new reconciliation is a new run; an old run is
// never rewritten.
// =============================================================================

// Trigger records what started a run.
type Trigger string

const (
	TriggerAPI       Trigger = "api"
	TriggerRefresh   Trigger = "refresh"
	TriggerScheduler Trigger = "scheduler"
	TriggerCLI       Trigger = "cli"
)

// Run is a completed reconciliation.
type Run struct {
	ID          string
	Trigger     Trigger
	Source      string
	CreatedAt   time.Time
	Records     []ReconciledRecord
	Diagnostics Diagnostics
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID                string
	Trigger           Trigger
	Source            string
	CreatedAt         time.Time
	Records           int
	Matched           int
	ApportionmentOnly int
	ExecutionOnly     int
	DroppedRows       int
}

// RunStore persists runs.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

func NewRunID() string {
	return uuid.New().String()
}

// NewRun wraps a result as a run with a fresh identifier.
func NewRun(trigger Trigger, source string, res *Result, now time.Time) Run {
	return Run{
		ID:          NewRunID(),
		Trigger:     trigger,
		Source:      source,
		CreatedAt:   now.UTC(),
		Records:     res.Records,
		Diagnostics: res.Diagnostics,
	}
}

func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:                r.ID,
		Trigger:           r.Trigger,
		Source:            r.Source,
		CreatedAt:         r.CreatedAt,
		Records:           len(r.Records),
		Matched:           r.Diagnostics.Matched,
		ApportionmentOnly: r.Diagnostics.ApportionmentOnly,
		ExecutionOnly:     r.Diagnostics.ExecutionOnly,
		DroppedRows:       r.Diagnostics.DroppedRows(),
	}
}

// Document renders the run as an output document.
func (r Run) Document() Document {
	return NewDocument(r.ID, r.CreatedAt, r.Records, r.Diagnostics)
}
