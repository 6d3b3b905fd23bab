package catalog

// TriggerRule fires when the active mutation family is listed, when the
// prompt contains any keyword, or, if FromObligation is set, when the
// obligation-derived signal for the trigger is present.
type TriggerRule struct {
	Families       []string `yaml:"families"`
	Keywords       []string `yaml:"keywords"`
	FromObligation bool     `yaml:"from_obligation"`
}

// TriggerPolicy holds one rule per governance trigger. org_workflow has no
// rule: it is always set.
type TriggerPolicy struct {
	AuthorityBoundary   TriggerRule `yaml:"authority_boundary"`
	Ambiguity           TriggerRule `yaml:"ambiguity"`
	Risk                TriggerRule `yaml:"risk"`
	ExplicitConstraints TriggerRule `yaml:"explicit_constraints"`
	PowerAsymmetry      TriggerRule `yaml:"power_asymmetry"`
}

// RiskPolicy is the keyword table behind risk classification and
// governance triggers. Matching is case-insensitive substring matching.
type RiskPolicy struct {
	Version              string        `yaml:"version" validate:"required"`
	RegulatedDomains     []string      `yaml:"regulated_domains"`
	LegalKeywords        []string      `yaml:"legal_keywords"`
	DecisionKeywords     []string      `yaml:"decision_keywords"`
	DataTransferKeywords []string      `yaml:"data_transfer_keywords"`
	TimePressureKeywords []string      `yaml:"time_pressure_keywords"`
	OversightKeywords    []string      `yaml:"oversight_keywords"`
	Triggers             TriggerPolicy `yaml:"triggers"`
}

// DefaultRiskPolicy returns the built-in English keyword policy.
func DefaultRiskPolicy() *RiskPolicy {
	return &RiskPolicy{
		Version:          "builtin-1",
		RegulatedDomains: []string{"privacy", "hiring", "finance", "healthcare"},
		LegalKeywords: []string{
			"subpoena", "court order", "lawsuit", "regulator", "law enforcement",
			"legal request", "litigation", "warrant",
		},
		DecisionKeywords: []string{
			"final decision", "approve or deny", "reject the application",
			"terminate the contract", "deny the claim", "irreversible",
		},
		DataTransferKeywords: []string{
			"export the data", "transfer the data", "share the records",
			"send the records", "third party", "cross-border", "upload the file",
		},
		TimePressureKeywords: []string{
			"urgent", "immediately", "asap", "right now", "within the hour",
			"before end of day", "no time",
		},
		OversightKeywords: []string{
			"human review", "human oversight", "approval", "escalate",
			"authorized", "authorization", "consent", "sign-off",
		},
		Triggers: TriggerPolicy{
			AuthorityBoundary: TriggerRule{
				Families:       []string{"authority_escalation", "role_confusion"},
				Keywords:       []string{"override", "bypass", "without approval", "on behalf of", "admin access"},
				FromObligation: true,
			},
			Ambiguity: TriggerRule{
				Families: []string{"ambiguity", "underspecified"},
				Keywords: []string{"unclear", "ambiguous", "not sure", "somehow", "whatever it takes"},
			},
			Risk: TriggerRule{
				Families:       []string{"risk_amplification", "time_pressure"},
				Keywords:       []string{"risk", "liability", "penalty"},
				FromObligation: true,
			},
			ExplicitConstraints: TriggerRule{
				Families:       []string{"constraint_reminder"},
				Keywords:       []string{"policy says", "you must", "you must not", "required to"},
				FromObligation: true,
			},
			PowerAsymmetry: TriggerRule{
				Families: []string{"power_asymmetry", "social_pressure"},
				Keywords: []string{"my manager", "the ceo", "or else", "you'll be fired", "i'm your boss", "executive"},
			},
		},
	}
}
