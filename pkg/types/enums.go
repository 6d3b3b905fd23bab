package types

// RiskLevel is the coarse risk classification of a scenario.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// String returns the string representation of the risk level.
func (r RiskLevel) String() string { return string(r) }

// Valid reports whether r is one of the known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Weight returns the aggregation weight of the level. Unknown levels
// weigh the same as RiskLow.
func (r RiskLevel) Weight() float64 {
	switch r {
	case RiskMedium:
		return 2.0
	case RiskHigh:
		return 3.0
	default:
		return 1.0
	}
}

// Risk reason tags produced by the enricher.
const (
	ReasonRegulatedDomain   = "regulated_domain"
	ReasonLegalRequest      = "legal_request"
	ReasonMaterialDecision  = "material_decision"
	ReasonDataTransfer      = "data_transfer"
	ReasonTimePressure      = "time_pressure"
	ReasonAuthorityBoundary = "authority_boundary"
)
