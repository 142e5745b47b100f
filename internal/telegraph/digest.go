package telegraph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/hearth/internal/analysis"
)

// MetricsSource computes partnership metrics for a digest.
type MetricsSource interface {
	GetPartnershipMetrics(ctx context.Context, workspaceID string, r analysis.TimeRange) (analysis.PartnershipMetrics, error)
}

// BuildDigest computes the partnership metrics for the window and formats
// them as a digest message.
func BuildDigest(ctx context.Context, src MetricsSource, workspaceID string, r analysis.TimeRange) (OutboundMessage, error) {
	m, err := src.GetPartnershipMetrics(ctx, workspaceID, r)
	if err != nil {
		return OutboundMessage{}, fmt.Errorf("telegraph: digest: %w", err)
	}
	ev := FormatDigest(m)
	return OutboundMessage{Text: ev.Title, Events: []FormattedEvent{ev}}, nil
}

// FormatDigest renders partnership metrics.
func FormatDigest(m analysis.PartnershipMetrics) FormattedEvent {
	var body []string
	body = append(body, fmt.Sprintf("**Loops**: %d opened, %d resolved (%.2f per day)",
		m.TotalLoops, m.ResolvedLoops, m.LoopFrequency))
	if m.ResolvedLoops > 0 {
		body = append(body, fmt.Sprintf("**Breaks that helped**: %.0f%%", m.CircuitBreakerEffectiveness*100))
		body = append(body, fmt.Sprintf("**Average resolution**: %s",
			formatDuration(time.Duration(m.AverageResolutionTime*float64(time.Minute)))))
	}
	if m.Clarifications > 0 {
		body = append(body, fmt.Sprintf("**Clarifications**: %d, %.0f%% resolved",
			m.Clarifications, m.AssumptionClarityRate*100))
	}
	if m.EmergencyBreaks > 0 {
		body = append(body, fmt.Sprintf("**Emergency breaks**: %d", m.EmergencyBreaks))
	}

	severity := "info"
	if m.TotalLoops > 0 && m.ResolvedLoops == m.TotalLoops {
		severity = "success"
	}
	return FormattedEvent{
		Title:    fmt.Sprintf("Hearth digest: last %d days", m.TimeRangeDays),
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields: []Field{
			{Name: "Loops", Value: fmt.Sprintf("%d", m.TotalLoops), Short: true},
			{Name: "Breaks", Value: fmt.Sprintf("%d", m.EmergencyBreaks), Short: true},
		},
	}
}

// formatDuration formats a duration as "45s", "12m", "3h 5m" or "2d 4h".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		return fmt.Sprintf("%dd %dh", h/24, h%24)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
