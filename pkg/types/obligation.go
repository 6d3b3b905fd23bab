package types

// Obligation is a governance rule expressed as MUST / MUST NOT statements
// with source provenance. Obligations are loaded once per run and never
// modified.
type Obligation struct {
	ObligationID string   `json:"obligation_id" yaml:"obligation_id"`
	Must         []string `json:"must" yaml:"must"`
	MustNot      []string `json:"must_not" yaml:"must_not"`
	SourceType   string   `json:"source_type" yaml:"source_type"`
	SourceRef    string   `json:"source_ref" yaml:"source_ref"`
	ExcerptID    string   `json:"excerpt_id,omitempty" yaml:"excerpt_id"`
}

// Source returns the provenance entry recorded in a scenario's seed trace.
func (o Obligation) Source() Source {
	return Source{
		ObligationID: o.ObligationID,
		SourceType:   o.SourceType,
		SourceRef:    o.SourceRef,
		ExcerptID:    o.ExcerptID,
	}
}

// Source identifies where an obligation came from.
type Source struct {
	ObligationID string `json:"obligation_id"`
	SourceType   string `json:"source_type"`
	SourceRef    string `json:"source_ref"`
	ExcerptID    string `json:"excerpt_id,omitempty"`
}
