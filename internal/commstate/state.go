// Package commstate is the communication state machine for a two-member
// workspace: calm, tense and paused, the emergency pause with its offline
// queue, and automatic recovery when a pause times out.
package commstate

import "github.com/zulandar/hearth/internal/models"

// transitions lists the states reachable from each state. Paused is
// reachable from everywhere; staying put is always allowed.
var transitions = map[string][]string{
	models.StateCalm:   {models.StateCalm, models.StateTense, models.StatePaused},
	models.StateTense:  {models.StateTense, models.StateCalm, models.StatePaused},
	models.StatePaused: {models.StatePaused, models.StateCalm, models.StateTense},
}

// ValidState reports whether s is one of the three states.
func ValidState(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when the pair is not allowed.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// ColorFor returns the display color for a state.
func ColorFor(state string) string {
	switch state {
	case models.StateTense:
		return models.ColorYellow
	case models.StatePaused:
		return models.ColorRed
	default:
		return models.ColorGreen
	}
}

// modeFor returns the legacy current_mode value mirroring a state.
func modeFor(state string) string {
	if state == models.StatePaused {
		return models.ModeEmergencyBreak
	}
	return models.ModeNormal
}
