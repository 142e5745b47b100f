package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

// DetectLoop opens a debugging loop when the workspace has at least the
// threshold number of unresolved clarifications inside the loop window and
// no loop is already open. It returns the new loop, or nil when none was
// opened.
func (a *Analyzer) DetectLoop(ctx context.Context, workspaceID string) (*models.DebugLoop, error) {
	open, err := a.store.OpenLoops(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("analysis: detect loop %s: %w", workspaceID, err)
	}
	if len(open) > 0 {
		return nil, nil
	}

	events, err := a.store.EventsOfType(ctx, workspaceID, models.EventAssumptionClarification, a.now().Add(-a.loopWindow))
	if err != nil {
		return nil, fmt.Errorf("analysis: detect loop %s: %w", workspaceID, err)
	}
	var unresolved []models.CommunicationEvent
	for _, ev := range events {
		if !ev.Resolved {
			unresolved = append(unresolved, ev)
		}
	}
	if len(unresolved) < a.loopThreshold {
		return nil, nil
	}
	sort.SliceStable(unresolved, func(i, j int) bool {
		return unresolved[i].CreatedAt.Before(unresolved[j].CreatedAt)
	})

	first, last := unresolved[0], unresolved[len(unresolved)-1]
	span := last.CreatedAt.Sub(first.CreatedAt)
	loop := &models.DebugLoop{
		WorkspaceID:  workspaceID,
		Participants: store.EncodeList(participants(unresolved)),
		TriggerEvent: first.ID,
		LoopIndicators: store.EncodeList([]string{
			fmt.Sprintf("%d unresolved clarifications in %d minutes", len(unresolved), int(a.loopWindow.Minutes())),
		}),
		DurationMinutes: int(math.Ceil(span.Minutes())),
	}
	if err := a.store.CreateLoop(ctx, loop); err != nil {
		return nil, fmt.Errorf("analysis: detect loop %s: %w", workspaceID, err)
	}
	a.metrics.RecordLoopDetected()
	return loop, nil
}

// ResolveLoop closes an open loop with a method and a 1-5 effectiveness
// rating. Closing a loop twice fails with store.ErrAlreadyResolved.
func (a *Analyzer) ResolveLoop(ctx context.Context, loopID, method string, rating int) (*models.DebugLoop, error) {
	loop, err := a.store.CloseLoop(ctx, loopID, method, rating)
	if err != nil {
		return nil, fmt.Errorf("analysis: resolve loop: %w", err)
	}
	return loop, nil
}

func participants(events []models.CommunicationEvent) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range events {
		if ev.UserID == "" || ev.UserID == models.SystemUserID || seen[ev.UserID] {
			continue
		}
		seen[ev.UserID] = true
		out = append(out, ev.UserID)
	}
	sort.Strings(out)
	return out
}
