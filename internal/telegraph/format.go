package telegraph

import (
	"fmt"
	"strings"

	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// stateSeverity maps a communication state to an attachment severity:
// calm is green, tense yellow, paused red.
func stateSeverity(state string) string {
	switch state {
	case models.StateCalm:
		return "success"
	case models.StateTense:
		return "warning"
	case models.StatePaused:
		return "error"
	default:
		return "info"
	}
}

func riskSeverity(level string) string {
	switch level {
	case analysis.RiskHigh:
		return "error"
	case analysis.RiskMedium:
		return "warning"
	default:
		return "success"
	}
}

// FormatNotification renders a state machine notification for the channel.
func FormatNotification(n commstate.Notification) FormattedEvent {
	if n.Kind == commstate.KindAcknowledged {
		return FormattedEvent{
			Title:    fmt.Sprintf("%s acknowledged the pause", n.ActorID),
			Severity: "info",
			Color:    ColorInfo,
			Fields:   []Field{{Name: "State", Value: n.State, Short: true}},
		}
	}

	var title string
	switch n.State {
	case models.StatePaused:
		title = "Emergency pause"
		if n.Topic != "" {
			title = fmt.Sprintf("Emergency pause: %s", n.Topic)
		}
	case models.StateTense:
		title = "Things feel tense"
	default:
		title = "Back to calm"
	}

	var body []string
	switch {
	case n.Trigger == models.TriggerTimeout:
		body = append(body, "The break timer ran out.")
	case n.Trigger == models.TriggerAutoPattern:
		body = append(body, "Hearth noticed a pattern and changed the state.")
	case n.ActorID != "":
		body = append(body, fmt.Sprintf("Changed by %s.", n.ActorID))
	}
	if n.TimeoutEnd != nil {
		body = append(body, fmt.Sprintf("Resumes at %s.", n.TimeoutEnd.Format("15:04")))
	}

	severity := stateSeverity(n.State)
	fields := []Field{{Name: "State", Value: n.State, Short: true}}
	if n.Trigger != "" {
		fields = append(fields, Field{Name: "Trigger", Value: n.Trigger, Short: true})
	}
	return FormattedEvent{
		Title:    title,
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatStatus renders the current mode and emergency projection.
func FormatStatus(mode *models.CommunicationMode, es commstate.EmergencyState) FormattedEvent {
	severity := stateSeverity(mode.StateDisplay)
	fields := []Field{
		{Name: "State", Value: mode.StateDisplay, Short: true},
		{Name: "Breaks today", Value: fmt.Sprintf("%d", mode.BreakCountToday), Short: true},
	}
	var body []string
	if mode.ActiveTopic != "" {
		body = append(body, fmt.Sprintf("Topic: %s", mode.ActiveTopic))
	}
	if es.IsEmergency && es.TimeRemaining != nil {
		body = append(body, fmt.Sprintf("%d minutes remaining", *es.TimeRemaining))
		ack := "no"
		if mode.PartnerAcknowledged {
			ack = "yes"
		}
		fields = append(fields, Field{Name: "Acknowledged", Value: ack, Short: true})
	}
	return FormattedEvent{
		Title:    fmt.Sprintf("Hearth is %s", mode.StateDisplay),
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatRisk renders a risk assessment.
func FormatRisk(r analysis.RiskAssessment) FormattedEvent {
	severity := riskSeverity(r.Level)
	var body []string
	for _, ind := range r.Indicators {
		body = append(body, "- "+ind)
	}
	return FormattedEvent{
		Title:    fmt.Sprintf("Risk: %s", r.Level),
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields: []Field{
			{Name: "Suggested", Value: r.Action, Short: true},
			{Name: "Confidence", Value: fmt.Sprintf("%.0f%%", r.Confidence*100), Short: true},
		},
	}
}
