package analysis

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
)

// StateApplier is the part of the state machine the Advisor drives.
type StateApplier interface {
	GetMode(ctx context.Context, workspaceID string) (*models.CommunicationMode, error)
	UpdateState(ctx context.Context, workspaceID string, change commstate.StateChange, actorID string) (*models.CommunicationMode, error)
}

// Advice is the outcome of one Advisor evaluation.
type Advice struct {
	WorkspaceID    string            `json:"workspace_id"`
	Assessment     RiskAssessment    `json:"assessment"`
	Strain         string            `json:"strain"`
	CurrentState   string            `json:"current_state"`
	SuggestedState string            `json:"suggested_state"`
	Applied        bool              `json:"applied"`
	Held           bool              `json:"held,omitempty"`
	Loop           *models.DebugLoop `json:"loop,omitempty"`
}

// Advisor turns risk assessments into suggested, and optionally applied,
// state changes.
type Advisor struct {
	analyzer  *Analyzer
	machine   StateApplier
	autoApply bool
}

// AdvisorOpts holds parameters for creating an Advisor.
type AdvisorOpts struct {
	Analyzer  *Analyzer
	Machine   StateApplier
	AutoApply bool
}

// NewAdvisor creates an Advisor.
func NewAdvisor(opts AdvisorOpts) (*Advisor, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analysis: analyzer is required")
	}
	if opts.Machine == nil {
		return nil, fmt.Errorf("analysis: machine is required")
	}
	return &Advisor{analyzer: opts.Analyzer, machine: opts.Machine, autoApply: opts.AutoApply}, nil
}

// Evaluate detects loops, assesses risk and maps it to a suggested state.
// With auto-apply on, a suggestion more severe than the current state is
// applied as an auto_pattern transition; the Advisor never de-escalates.
// A member easing the state inside the loop window holds auto-escalation
// until the window passes, so an unresolved loop cannot re-pause a
// workspace on every tick.
func (a *Advisor) Evaluate(ctx context.Context, workspaceID string) (Advice, error) {
	adv := Advice{WorkspaceID: workspaceID}

	loop, err := a.analyzer.DetectLoop(ctx, workspaceID)
	if err != nil {
		log.Printf("analysis: advisor %s: %v", workspaceID, err)
	}
	adv.Loop = loop

	adv.Assessment = a.analyzer.EvaluateWorkspace(ctx, workspaceID)
	adv.Strain = StrainFor(adv.Assessment.Level)
	adv.SuggestedState = StateForStrain(adv.Strain)

	mode, err := a.machine.GetMode(ctx, workspaceID)
	if err != nil {
		return adv, fmt.Errorf("analysis: advisor %s: %w", workspaceID, err)
	}
	adv.CurrentState = mode.StateDisplay

	if !a.autoApply || !MoreSevere(adv.SuggestedState, adv.CurrentState) {
		return adv, nil
	}
	if a.recentlyEased(ctx, workspaceID) {
		adv.Held = true
		return adv, nil
	}
	confidence := adv.Assessment.Confidence
	change := commstate.StateChange{
		State:      adv.SuggestedState,
		Topic:      mode.ActiveTopic,
		Trigger:    models.TriggerAutoPattern,
		Confidence: &confidence,
	}
	if _, err := a.machine.UpdateState(ctx, workspaceID, change, ""); err != nil {
		return adv, fmt.Errorf("analysis: advisor %s: apply %s: %w", workspaceID, adv.SuggestedState, err)
	}
	adv.Applied = true
	return adv, nil
}

// recentlyEased reports whether the latest transition inside the loop window
// moved the workspace to a less severe state. Read failures do not hold
// escalation.
func (a *Advisor) recentlyEased(ctx context.Context, workspaceID string) bool {
	trs, err := a.analyzer.store.TransitionsSince(ctx, workspaceID, a.analyzer.now().Add(-a.analyzer.loopWindow))
	if err != nil {
		log.Printf("analysis: advisor %s: transitions: %v", workspaceID, err)
		return false
	}
	if len(trs) == 0 {
		return false
	}
	last := trs[len(trs)-1]
	return MoreSevere(last.FromState, last.ToState)
}
