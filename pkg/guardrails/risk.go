package guardrails

// RiskLevel is an ordinal risk rating for a conversation turn.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Framework identifies a regulatory compliance framework.
type Framework string

const (
	FrameworkPCIDSS Framework = "pci_dss"
	FrameworkHIPAA  Framework = "hipaa"
	FrameworkGDPR   Framework = "gdpr"
	FrameworkSOX    Framework = "sox"
	FrameworkTCPA   Framework = "tcpa"
)
