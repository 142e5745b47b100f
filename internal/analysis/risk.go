package analysis

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

// Risk levels, lowest first.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Suggested actions, mildest first.
const (
	ActionContinue     = "continue"
	ActionGentleMode   = "gentle_mode"
	ActionCircuitBreak = "circuit_break"
	ActionTimeout      = "timeout"
)

const (
	riskWindow       = 30 * time.Minute
	recentLoopWindow = 2 * time.Hour
	highLoadAbove    = 7
)

var (
	riskRank   = map[string]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	actionRank = map[string]int{ActionContinue: 0, ActionGentleMode: 1, ActionCircuitBreak: 2, ActionTimeout: 3}
)

// Capacity is a member's declared energy and cognitive load.
type Capacity struct {
	EnergyLevel   string `json:"energy_level"`
	CognitiveLoad int    `json:"cognitive_load"`
}

// RiskAssessment is the analyzer's verdict for a workspace.
type RiskAssessment struct {
	Level      string   `json:"risk_level"`
	Action     string   `json:"suggested_action"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators"`
}

// Unavailable is the assessment returned when analysis cannot complete.
func Unavailable() RiskAssessment {
	return RiskAssessment{
		Level:      RiskLow,
		Action:     ActionContinue,
		Confidence: 0,
		Indicators: []string{"Analysis unavailable"},
	}
}

// escalate raises the level and action; it never lowers either.
func (r *RiskAssessment) escalate(level, action string) {
	if riskRank[level] > riskRank[r.Level] {
		r.Level = level
	}
	if actionRank[action] > actionRank[r.Action] {
		r.Action = action
	}
}

// DetectDebuggingRisk classifies escalation risk from a caller-supplied
// event window and one member's capacity (nil when undeclared). Its only
// I/O is one read of the workspace's open and recent loops; if that read
// fails the Unavailable assessment is returned.
func (a *Analyzer) DetectDebuggingRisk(ctx context.Context, workspaceID string, recentEvents []models.CommunicationEvent, capacity *Capacity) RiskAssessment {
	now := a.now()
	res := RiskAssessment{Level: RiskLow, Action: ActionContinue, Indicators: []string{}}

	cutoff := now.Add(-riskWindow)
	var inWindow, clarifications int
	for _, ev := range recentEvents {
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		inWindow++
		if ev.EventType == models.EventAssumptionClarification {
			clarifications++
		}
	}

	if inWindow >= 3 {
		res.escalate(RiskMedium, ActionContinue)
		res.Indicators = append(res.Indicators, fmt.Sprintf("%d events in the last 30 minutes", inWindow))
	}
	if clarifications >= 2 {
		res.escalate(RiskHigh, ActionCircuitBreak)
		res.Indicators = append(res.Indicators, fmt.Sprintf("%d assumption clarifications in the last 30 minutes", clarifications))
	}
	if capacity != nil && capacity.EnergyLevel == models.EnergyLow && capacity.CognitiveLoad > highLoadAbove {
		res.escalate(RiskMedium, ActionGentleMode)
		res.Indicators = append(res.Indicators, fmt.Sprintf("Low energy with cognitive load %d", capacity.CognitiveLoad))
	}

	loops, err := a.store.RecentOrOpenLoops(ctx, workspaceID, now.Add(-recentLoopWindow))
	if err != nil {
		log.Printf("analysis: risk %s: %v", workspaceID, err)
		a.metrics.RecordRiskEvaluation("unavailable")
		return Unavailable()
	}
	if len(loops) > 0 {
		res.escalate(RiskHigh, ActionTimeout)
		res.Indicators = append(res.Indicators, "Active or recent debugging loop")
	}

	res.Confidence = math.Min(0.9, 0.3*float64(len(res.Indicators)))
	a.metrics.RecordRiskEvaluation(res.Level)
	return res
}

// EvaluateWorkspace gathers the trailing event window and today's most
// strained capacity declaration, then runs DetectDebuggingRisk.
func (a *Analyzer) EvaluateWorkspace(ctx context.Context, workspaceID string) RiskAssessment {
	now := a.now()
	events, err := a.store.RecentEvents(ctx, workspaceID, now.Add(-riskWindow))
	if err != nil {
		log.Printf("analysis: evaluate %s: %v", workspaceID, err)
		return Unavailable()
	}
	rows, err := a.store.WorkspaceCapacity(ctx, workspaceID, store.DayKey(now))
	if err != nil {
		log.Printf("analysis: evaluate %s: capacity: %v", workspaceID, err)
		return Unavailable()
	}
	return a.DetectDebuggingRisk(ctx, workspaceID, events, mostStrained(rows))
}

// mostStrained picks the declaration most likely to trigger the capacity
// rule: low energy first, then the highest load.
func mostStrained(rows []models.CapacityStatus) *Capacity {
	var best *Capacity
	for _, r := range rows {
		c := Capacity{EnergyLevel: r.EnergyLevel, CognitiveLoad: r.CognitiveLoad}
		if best == nil {
			best = &c
			continue
		}
		bestLow := best.EnergyLevel == models.EnergyLow
		low := c.EnergyLevel == models.EnergyLow
		if (low && !bestLow) || (low == bestLow && c.CognitiveLoad > best.CognitiveLoad) {
			best = &c
		}
	}
	return best
}
