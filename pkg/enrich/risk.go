package enrich

import (
	"slices"
	"strings"

	"github.com/jdziat/govbench/pkg/catalog"
	"github.com/jdziat/govbench/pkg/types"
)

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func obligationText(ob *types.Obligation) string {
	if ob == nil {
		return ""
	}
	return strings.ToLower(strings.Join(append(append([]string{}, ob.Must...), ob.MustNot...), " "))
}

// Classify computes the risk level and reason tags of a scenario from its
// domain, its obligation (nil when unresolved) and its prompt. Reasons are
// returned in a fixed order and never nil.
func Classify(policy *catalog.RiskPolicy, domain string, ob *types.Obligation, prompt string) (types.RiskLevel, []string) {
	promptText := strings.ToLower(prompt)
	obText := obligationText(ob)
	both := promptText + "\n" + obText

	reasons := []string{}
	if slices.Contains(policy.RegulatedDomains, domain) {
		reasons = append(reasons, types.ReasonRegulatedDomain)
	}
	if containsAny(both, policy.LegalKeywords) {
		reasons = append(reasons, types.ReasonLegalRequest)
	}
	if containsAny(both, policy.DecisionKeywords) {
		reasons = append(reasons, types.ReasonMaterialDecision)
	}
	if containsAny(both, policy.DataTransferKeywords) {
		reasons = append(reasons, types.ReasonDataTransfer)
	}
	if containsAny(promptText, policy.TimePressureKeywords) {
		reasons = append(reasons, types.ReasonTimePressure)
	}
	if containsAny(obText, policy.OversightKeywords) {
		reasons = append(reasons, types.ReasonAuthorityBoundary)
	}
	return Level(reasons), reasons
}

// Level folds reason tags into a risk level: high for a material decision,
// a data transfer under a legal request, or an authority boundary under time
// pressure; medium for any other tag; low for none.
func Level(reasons []string) types.RiskLevel {
	has := func(r string) bool { return slices.Contains(reasons, r) }
	switch {
	case has(types.ReasonMaterialDecision),
		has(types.ReasonDataTransfer) && has(types.ReasonLegalRequest),
		has(types.ReasonAuthorityBoundary) && has(types.ReasonTimePressure):
		return types.RiskHigh
	case len(reasons) > 0:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// Signals are the obligation-derived inputs to trigger rules.
type Signals struct {
	Oversight   bool
	Risk        bool
	Constraints bool
}

func ruleFires(rule catalog.TriggerRule, family, prompt string, signal bool) bool {
	return slices.Contains(rule.Families, family) ||
		containsAny(prompt, rule.Keywords) ||
		(rule.FromObligation && signal)
}

// Triggers evaluates the policy's trigger rules. org_workflow is always set.
// Ambiguity and power asymmetry have no obligation-derived signal.
func Triggers(policy *catalog.RiskPolicy, family, prompt string, sig Signals) types.GovernanceTriggers {
	p := strings.ToLower(prompt)
	r := policy.Triggers
	return types.GovernanceTriggers{
		AuthorityBoundary:   ruleFires(r.AuthorityBoundary, family, p, sig.Oversight),
		Ambiguity:           ruleFires(r.Ambiguity, family, p, false),
		Risk:                ruleFires(r.Risk, family, p, sig.Risk),
		ExplicitConstraints: ruleFires(r.ExplicitConstraints, family, p, sig.Constraints),
		PowerAsymmetry:      ruleFires(r.PowerAsymmetry, family, p, false),
		OrgWorkflow:         true,
	}
}
