package analysis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/zulandar/hearth/internal/models"
)

// TimeRange is a trailing analytics window in days.
type TimeRange int

// Supported analytics windows.
const (
	Range7d  TimeRange = 7
	Range30d TimeRange = 30
	Range90d TimeRange = 90
)

// ParseTimeRange accepts "7", "30", "90" with an optional "d" suffix.
// Empty input selects the 7 day window.
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		return Range7d, nil
	}
	if s[len(s)-1] == 'd' {
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("analysis: invalid time range %q", s)
	}
	switch r := TimeRange(n); r {
	case Range7d, Range30d, Range90d:
		return r, nil
	}
	return 0, fmt.Errorf("analysis: time range must be 7, 30 or 90 days, got %d", n)
}

// Duration returns the window length.
func (r TimeRange) Duration() time.Duration {
	return time.Duration(r) * 24 * time.Hour
}

// PartnershipMetrics aggregates a workspace's loops and clarifications over
// a trailing window. Ratios are 0 when their denominator is 0.
type PartnershipMetrics struct {
	WorkspaceID   string    `json:"workspace_id"`
	TimeRangeDays int       `json:"time_range_days"`
	Since         time.Time `json:"since"`

	LoopFrequency               float64 `json:"loop_frequency"`
	CircuitBreakerEffectiveness float64 `json:"circuit_breaker_effectiveness"`
	AverageResolutionTime       float64 `json:"average_resolution_time"`
	AssumptionClarityRate       float64 `json:"assumption_clarity_rate"`

	TotalLoops             int            `json:"total_loops"`
	ResolvedLoops          int            `json:"resolved_loops"`
	Clarifications         int            `json:"clarifications"`
	ResolvedClarifications int            `json:"resolved_clarifications"`
	EmergencyBreaks        int            `json:"emergency_breaks"`
	TransitionsByTrigger   map[string]int `json:"transitions_by_trigger"`
}

// GetPartnershipMetrics computes metrics for the trailing window. When any
// read fails it returns the zero-valued metrics for the window together
// with an error wrapping ErrAnalysisUnavailable; the metrics are always
// safe to render.
func (a *Analyzer) GetPartnershipMetrics(ctx context.Context, workspaceID string, r TimeRange) (PartnershipMetrics, error) {
	if r <= 0 {
		r = Range7d
	}
	since := a.now().Add(-r.Duration())
	out := PartnershipMetrics{
		WorkspaceID:          workspaceID,
		TimeRangeDays:        int(r),
		Since:                since,
		TransitionsByTrigger: map[string]int{},
	}
	unavailable := func(op string, err error) (PartnershipMetrics, error) {
		log.Printf("analysis: metrics %s: %s: %v", workspaceID, op, err)
		return out, fmt.Errorf("%w: %s: %w", ErrAnalysisUnavailable, op, err)
	}

	loops, err := a.store.LoopsSince(ctx, workspaceID, since)
	if err != nil {
		return unavailable("loops", err)
	}
	events, err := a.store.RecentEvents(ctx, workspaceID, since)
	if err != nil {
		return unavailable("events", err)
	}
	transitions, err := a.store.TransitionsSince(ctx, workspaceID, since)
	if err != nil {
		return unavailable("transitions", err)
	}

	var effective int
	var resolutionMinutes float64
	for _, l := range loops {
		out.TotalLoops++
		if l.ResolvedAt == nil {
			continue
		}
		out.ResolvedLoops++
		resolutionMinutes += l.ResolvedAt.Sub(l.CreatedAt).Minutes()
		if l.EffectivenessRating != nil && *l.EffectivenessRating >= 4 {
			effective++
		}
	}
	for _, ev := range events {
		switch ev.EventType {
		case models.EventAssumptionClarification:
			out.Clarifications++
			if ev.Resolved {
				out.ResolvedClarifications++
			}
		case models.EventEmergencyBreak:
			out.EmergencyBreaks++
		}
	}
	for _, tr := range transitions {
		out.TransitionsByTrigger[tr.TriggerType]++
	}

	out.LoopFrequency = ratio(float64(out.TotalLoops), float64(r))
	out.CircuitBreakerEffectiveness = ratio(float64(effective), float64(out.ResolvedLoops))
	out.AverageResolutionTime = ratio(resolutionMinutes, float64(out.ResolvedLoops))
	out.AssumptionClarityRate = ratio(float64(out.ResolvedClarifications), float64(out.Clarifications))
	return out, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
