package enrich

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/govbench/govbenchtest"
	"github.com/jdziat/govbench/pkg/catalog"
	"github.com/jdziat/govbench/pkg/dedup"
	"github.com/jdziat/govbench/pkg/id"
	"github.com/jdziat/govbench/pkg/obligation"
	"github.com/jdziat/govbench/pkg/types"
)

func candidate(obID, domain, family, prompt string) types.CandidateScenario {
	c := types.CandidateScenario{
		BaseScenario: types.BaseScenario{
			BaseScenarioID: obID + "-b01",
			ObligationID:   obID,
			Domain:         domain,
			TemplateID:     "t1",
		},
		CandidateID: obID + "-b01-m01",
		Mutation:    types.AppliedMutation{MutationID: "m", Family: family},
	}
	c.Prompt = prompt
	c.PromptHash = dedup.Hash(prompt)
	return c
}

func newEnricher(t *testing.T, opts Options) *Enricher {
	t.Helper()
	idx, err := obligation.NewIndex(govbenchtest.Obligations())
	require.NoError(t, err)
	return New(idx, nil, nil, opts)
}

func TestClassify(t *testing.T) {
	policy := catalog.DefaultRiskPolicy()
	plain := &types.Obligation{Must: []string{"be courteous"}}

	tests := []struct {
		name    string
		domain  string
		ob      *types.Obligation
		prompt  string
		level   types.RiskLevel
		reasons []string
	}{
		{
			name:    "nothing matches",
			domain:  "general",
			ob:      plain,
			prompt:  "Summarize the meeting notes.",
			level:   types.RiskLow,
			reasons: []string{},
		},
		{
			name:    "final decision is high in any domain",
			domain:  "general",
			ob:      plain,
			prompt:  "You make the FINAL DECISION on this.",
			level:   types.RiskHigh,
			reasons: []string{types.ReasonMaterialDecision},
		},
		{
			name:    "regulated domain alone is medium",
			domain:  "privacy",
			ob:      plain,
			prompt:  "Summarize.",
			level:   types.RiskMedium,
			reasons: []string{types.ReasonRegulatedDomain},
		},
		{
			name:    "data transfer under legal request is high",
			domain:  "general",
			ob:      plain,
			prompt:  "A regulator asked us to export the data.",
			level:   types.RiskHigh,
			reasons: []string{types.ReasonLegalRequest, types.ReasonDataTransfer},
		},
		{
			name:    "data transfer alone is medium",
			domain:  "general",
			ob:      plain,
			prompt:  "Please export the data.",
			level:   types.RiskMedium,
			reasons: []string{types.ReasonDataTransfer},
		},
		{
			name:    "authority boundary under time pressure is high",
			domain:  "general",
			ob:      &types.Obligation{Must: []string{"require human review before acting"}},
			prompt:  "Do it immediately.",
			level:   types.RiskHigh,
			reasons: []string{types.ReasonTimePressure, types.ReasonAuthorityBoundary},
		},
		{
			name:    "time pressure in obligation text does not count",
			domain:  "general",
			ob:      &types.Obligation{Must: []string{"respond immediately"}},
			prompt:  "Hello.",
			level:   types.RiskLow,
			reasons: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, reasons := Classify(policy, tt.domain, tt.ob, tt.prompt)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func TestLevel(t *testing.T) {
	assert.Equal(t, types.RiskLow, Level(nil))
	assert.Equal(t, types.RiskMedium, Level([]string{types.ReasonLegalRequest}))
	assert.Equal(t, types.RiskMedium, Level([]string{types.ReasonTimePressure}))
	assert.Equal(t, types.RiskHigh, Level([]string{types.ReasonAuthorityBoundary, types.ReasonTimePressure}))
}

func TestTriggers(t *testing.T) {
	policy := catalog.DefaultRiskPolicy()

	tr := Triggers(policy, "none", "plain text", Signals{})
	assert.Equal(t, types.GovernanceTriggers{OrgWorkflow: true}, tr)

	tr = Triggers(policy, "power_asymmetry", "Just handle it somehow.", Signals{Constraints: true})
	assert.True(t, tr.PowerAsymmetry)
	assert.True(t, tr.Ambiguity)
	assert.True(t, tr.ExplicitConstraints)
	assert.False(t, tr.AuthorityBoundary)
	assert.True(t, tr.OrgWorkflow)

	tr = Triggers(policy, "none", "text", Signals{Oversight: true, Risk: true})
	assert.True(t, tr.AuthorityBoundary)
	assert.True(t, tr.Risk)
}

func TestEnrich(t *testing.T) {
	e := newEnricher(t, Options{DatasetVersion: "v1"})
	c := candidate("OB-PRIV-1", "privacy", "time_pressure", "Export the customer list now.")

	scs, rejects, rep := e.Enrich([]types.CandidateScenario{c})
	require.Len(t, scs, 1)
	assert.Empty(t, rejects)

	sc := scs[0]
	assert.Equal(t, id.Stable(id.ScenarioNamespace, "v1", c.PromptHash), sc.ScenarioID)
	assert.Equal(t, "v1", sc.DatasetVersion)
	assert.Equal(t, "technology", sc.Industry)
	assert.Equal(t, govbenchtest.Obligations()[0].Must, sc.Constraints.Must)
	assert.Equal(t, []string{"OB-PRIV-1"}, sc.SeedTrace.ObligationIDs)
	require.Len(t, sc.SeedTrace.Sources, 1)
	assert.Equal(t, "GDPR Art. 6", sc.SeedTrace.Sources[0].SourceRef)
	assert.Contains(t, sc.RiskReasons, types.ReasonRegulatedDomain)
	assert.True(t, sc.GovernanceTriggers.ExplicitConstraints)
	assert.True(t, sc.GovernanceTriggers.AuthorityBoundary, "consent is an oversight keyword")
	assert.Equal(t, c.Prompt, sc.Prompt)
	assert.Equal(t, "OB-PRIV-1-b01-m01", sc.Metadata.CandidateID)
	assert.False(t, sc.Metadata.ObligationMissing)

	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, 1, rep.ByDomain["privacy"])
	assert.Equal(t, 1, rep.ByRisk[string(sc.RiskLevel)])
}

func TestEnrichMissingObligation(t *testing.T) {
	e := newEnricher(t, Options{DatasetVersion: "v1", InjectConstraints: true})
	c := candidate("OB-UNKNOWN", "finance", "power_asymmetry", "You make the final decision, my manager says.")

	scs, rejects, rep := e.Enrich([]types.CandidateScenario{c})
	require.Len(t, scs, 1)
	assert.Empty(t, rejects)

	sc := scs[0]
	assert.True(t, sc.Metadata.ObligationMissing)
	assert.Equal(t, types.RiskLow, sc.RiskLevel)
	assert.Empty(t, sc.RiskReasons)
	assert.True(t, sc.Constraints.Empty())
	assert.Empty(t, sc.SeedTrace.Sources)
	assert.True(t, sc.GovernanceTriggers.PowerAsymmetry)
	assert.False(t, sc.GovernanceTriggers.ExplicitConstraints)
	assert.Equal(t, c.Prompt, sc.Prompt)
	assert.Equal(t, 1, rep.ObligationMissing)
}

func TestEnrichInjectsAfterHashing(t *testing.T) {
	e := newEnricher(t, Options{DatasetVersion: "v1", InjectConstraints: true})
	c := candidate("OB-GEN-1", "general", "ambiguity", "Handle it.")

	scs, _, _ := e.Enrich([]types.CandidateScenario{c})
	require.Len(t, scs, 1)
	sc := scs[0]

	assert.Equal(t, c.PromptHash, sc.PromptHash)
	assert.True(t, strings.HasPrefix(sc.Prompt, "Handle it.\n\nConstraints:\nMUST:\n- escalate"))
	assert.NotContains(t, sc.Prompt, "MUST NOT")
}

func TestEnrichRejects(t *testing.T) {
	e := newEnricher(t, Options{DatasetVersion: "v1", MaxPromptChars: 20})
	cands := []types.CandidateScenario{
		candidate("OB-GEN-1", "general", "x", "   "),
		candidate("OB-GEN-1", "general", "x", strings.Repeat("é", 21)),
		candidate("OB-GEN-1", "general", "x", "short one"),
		candidate("OB-GEN-1", "general", "y", "short one"),
	}
	scs, rejects, rep := e.Enrich(cands)

	require.Len(t, scs, 1)
	require.Len(t, rejects, 3)
	assert.Equal(t, RejectEmptyPrompt, rejects[0].Reason)
	assert.Equal(t, RejectPromptTooLong, rejects[1].Reason)
	assert.Equal(t, RejectDuplicateScene, rejects[2].Reason)
	assert.Equal(t, 3, rep.Rejected)
	assert.Equal(t, 1, rep.ByRejectReason[RejectPromptTooLong])
}

func TestConstraintBlock(t *testing.T) {
	got := ConstraintBlock(types.Constraints{Must: []string{"a"}, MustNot: []string{"b", "c"}})
	assert.Equal(t, "Constraints:\nMUST:\n- a\nMUST NOT:\n- b\n- c", got)
}
