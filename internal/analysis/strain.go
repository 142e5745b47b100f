package analysis

import "github.com/zulandar/hearth/internal/models"

// Strain levels.
const (
	StrainMild     = "mild"
	StrainTense    = "tense"
	StrainCritical = "critical"
)

// StrainFor maps a risk level to a strain level. Unknown levels are mild.
func StrainFor(riskLevel string) string {
	switch riskLevel {
	case RiskHigh:
		return StrainCritical
	case RiskMedium:
		return StrainTense
	default:
		return StrainMild
	}
}

// StateForStrain maps a strain level to the communication state it suggests.
func StateForStrain(strain string) string {
	switch strain {
	case StrainCritical:
		return models.StatePaused
	case StrainTense:
		return models.StateTense
	default:
		return models.StateCalm
	}
}

var stateSeverity = map[string]int{
	models.StateCalm:   0,
	models.StateTense:  1,
	models.StatePaused: 2,
}

// MoreSevere reports whether state a is more severe than state b.
func MoreSevere(a, b string) bool {
	return stateSeverity[a] > stateSeverity[b]
}
