package models

// RiskLevel grades the remote-access exposure of a single line.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskUnknown  RiskLevel = "UNKNOWN"
)

// Weight returns a numeric weight for sorting (higher = more severe).
func (r RiskLevel) Weight() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

func (r RiskLevel) String() string {
	return string(r)
}

// RiskLevelForScore maps an additive exposure score to a level.
// CRITICAL is never reached by score alone; it is reserved for the
// console-server override applied by the classifier.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 40:
		return RiskHigh
	case score >= 20:
		return RiskMedium
	default:
		return RiskLow
	}
}

// MapRiskLevel normalises stored or user-supplied level strings.
func MapRiskLevel(raw string) RiskLevel {
	switch raw {
	case "CRITICAL", "critical":
		return RiskCritical
	case "HIGH", "high":
		return RiskHigh
	case "MEDIUM", "medium", "MODERATE", "moderate":
		return RiskMedium
	case "LOW", "low", "INFO", "info":
		return RiskLow
	default:
		return RiskUnknown
	}
}
