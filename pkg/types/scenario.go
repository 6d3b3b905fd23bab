package types

// RoleContext describes who is talking to whom, and where.
type RoleContext struct {
	AssistantRole string `json:"assistant_role"`
	UserRole      string `json:"user_role"`
	OrgContext    string `json:"org_context"`
}

// BaseScenario is a rendered prompt before mutation.
type BaseScenario struct {
	BaseScenarioID string            `json:"base_scenario_id"`
	ObligationID   string            `json:"obligation_id"`
	Domain         string            `json:"domain"`
	RoleContext    RoleContext       `json:"role_context"`
	TemplateID     string            `json:"template_id"`
	RenderVars     map[string]string `json:"render_vars"`
	Prompt         string            `json:"prompt"`
}

// MutationSpec is a catalog entry describing one perturbation.
type MutationSpec struct {
	MutationID string         `json:"mutation_id" yaml:"mutation_id" validate:"required"`
	Family     string         `json:"family" yaml:"family" validate:"required"`
	Template   string         `json:"template" yaml:"template" validate:"required"`
	Params     map[string]any `json:"params,omitempty" yaml:"params"`
}

// AppliedMutation records the mutation applied to a base scenario, with the
// parameter values that were actually chosen.
type AppliedMutation struct {
	MutationID string         `json:"mutation_id"`
	Family     string         `json:"family"`
	Params     map[string]any `json:"params,omitempty"`
	Text       string         `json:"text"`
}

// CandidateScenario is a base scenario after perturbation.
type CandidateScenario struct {
	BaseScenario
	CandidateID string          `json:"candidate_id"`
	BasePrompt  string          `json:"base_prompt"`
	Mutation    AppliedMutation `json:"mutation"`
	PromptHash  string          `json:"prompt_hash,omitempty"`
}

// Constraints are the MUST / MUST NOT statements a response is judged against.
type Constraints struct {
	Must    []string `json:"must"`
	MustNot []string `json:"must_not"`
}

// Empty reports whether there are no constraints at all.
func (c Constraints) Empty() bool {
	return len(c.Must) == 0 && len(c.MustNot) == 0
}

// GovernanceTriggers flags the governance concerns a scenario exercises.
type GovernanceTriggers struct {
	AuthorityBoundary   bool `json:"authority_boundary"`
	Ambiguity           bool `json:"ambiguity"`
	Risk                bool `json:"risk"`
	ExplicitConstraints bool `json:"explicit_constraints"`
	PowerAsymmetry      bool `json:"power_asymmetry"`
	OrgWorkflow         bool `json:"org_workflow"`
}

// SeedTrace records which obligations a scenario was derived from.
type SeedTrace struct {
	ObligationIDs []string `json:"obligation_ids"`
	Sources       []Source `json:"sources"`
}

// ScenarioMetadata carries lineage and degradation flags.
type ScenarioMetadata struct {
	BaseScenarioID    string `json:"base_scenario_id"`
	CandidateID       string `json:"candidate_id"`
	TemplateID        string `json:"template_id"`
	ObligationMissing bool   `json:"obligation_missing,omitempty"`
}

// Scenario is the unit fed to inference.
type Scenario struct {
	ScenarioID         string             `json:"scenario_id"`
	DatasetVersion     string             `json:"dataset_version"`
	Domain             string             `json:"domain"`
	Industry           string             `json:"industry"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	RiskReasons        []string           `json:"risk_reasons"`
	Constraints        Constraints        `json:"constraints"`
	GovernanceTriggers GovernanceTriggers `json:"governance_triggers"`
	SeedTrace          SeedTrace          `json:"seed_trace"`
	MutationTrace      AppliedMutation    `json:"mutation_trace"`
	RoleContext        RoleContext        `json:"role_context"`
	PromptHash         string             `json:"prompt_hash"`
	Prompt             string             `json:"prompt"`
	Metadata           ScenarioMetadata   `json:"metadata"`
}

// RejectRecord explains why a candidate did not become a scenario.
type RejectRecord struct {
	CandidateID    string `json:"candidate_id"`
	BaseScenarioID string `json:"base_scenario_id"`
	Reason         string `json:"reason"`
	Detail         string `json:"detail,omitempty"`
}
