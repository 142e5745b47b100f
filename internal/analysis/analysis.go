// Package analysis reads the shared event history to classify escalation
// risk, open and close debugging loops, and aggregate partnership metrics.
// Every computation degrades to a safe default instead of failing its caller.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/models"
)

// ErrAnalysisUnavailable marks a computation that fell back to its default.
var ErrAnalysisUnavailable = errors.New("analysis: unavailable")

// Store is the read/append surface analysis needs from the relational store.
type Store interface {
	RecentEvents(ctx context.Context, workspaceID string, since time.Time) ([]models.CommunicationEvent, error)
	EventsOfType(ctx context.Context, workspaceID, eventType string, since time.Time) ([]models.CommunicationEvent, error)
	RecentOrOpenLoops(ctx context.Context, workspaceID string, since time.Time) ([]models.DebugLoop, error)
	OpenLoops(ctx context.Context, workspaceID string) ([]models.DebugLoop, error)
	LoopsSince(ctx context.Context, workspaceID string, since time.Time) ([]models.DebugLoop, error)
	CreateLoop(ctx context.Context, loop *models.DebugLoop) error
	CloseLoop(ctx context.Context, loopID, method string, rating int) (*models.DebugLoop, error)
	WorkspaceCapacity(ctx context.Context, workspaceID, day string) ([]models.CapacityStatus, error)
	TransitionsSince(ctx context.Context, workspaceID string, since time.Time) ([]models.CommunicationStateTransition, error)
}

// Defaults for loop detection.
const (
	DefaultLoopWindow    = 60 * time.Minute
	DefaultLoopThreshold = 3
)

// Analyzer computes risk, loops and partnership metrics for workspaces.
type Analyzer struct {
	store         Store
	metrics       *metrics.Metrics
	now           func() time.Time
	loopWindow    time.Duration
	loopThreshold int
}

// Opts holds parameters for creating an Analyzer.
type Opts struct {
	Store         Store
	Metrics       *metrics.Metrics
	Now           func() time.Time
	LoopWindow    time.Duration // defaults to DefaultLoopWindow
	LoopThreshold int           // defaults to DefaultLoopThreshold
}

// New creates an Analyzer.
func New(opts Opts) (*Analyzer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("analysis: store is required")
	}
	a := &Analyzer{
		store:         opts.Store,
		metrics:       opts.Metrics,
		now:           opts.Now,
		loopWindow:    opts.LoopWindow,
		loopThreshold: opts.LoopThreshold,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.loopWindow <= 0 {
		a.loopWindow = DefaultLoopWindow
	}
	if a.loopThreshold <= 0 {
		a.loopThreshold = DefaultLoopThreshold
	}
	return a, nil
}
