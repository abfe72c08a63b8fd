package parish

import (
	"context"
	"time"
)

// ListFilter specifies criteria for listing parishes.
type ListFilter struct {
	Country string `json:"country,omitempty"`
	Source  Source `json:"source,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// RunStatus tracks the state of an import run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the audit row written for every import invocation.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Target      string     `json:"target"`
	Status      RunStatus  `json:"status"`
	Imported    int        `json:"imported"`
	Updated     int        `json:"updated"`
	Rejected    int        `json:"rejected"`
	Failed      int        `json:"failed"`
	Message     string     `json:"message"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Store persists parish records. FindBySourceID returns nil, nil when no
// record exists for the pair.
type Store interface {
	// Parishes
	FindBySourceID(ctx context.Context, source Source, sourceID string) (*Record, error)
	Create(ctx context.Context, r *Record) (string, error)
	Update(ctx context.Context, r *Record) error
	BatchUpdate(ctx context.Context, records []*Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Runs
	CreateRun(ctx context.Context, kind, target string) (*Run, error)
	CompleteRun(ctx context.Context, run *Run) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
