// Package enrich turns deduplicated candidates into scenarios. It attaches
// obligation constraints and provenance, classifies risk, computes
// governance triggers, optionally appends a constraint block to the prompt,
// and rejects candidates that cannot be evaluated.
package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/govbench/pkg/catalog"
	"github.com/jdziat/govbench/pkg/dedup"
	"github.com/jdziat/govbench/pkg/id"
	"github.com/jdziat/govbench/pkg/obligation"
	"github.com/jdziat/govbench/pkg/types"
)

// Reject reasons.
const (
	RejectEmptyPrompt    = "empty_prompt"
	RejectPromptTooLong  = "prompt_too_long"
	RejectDuplicateScene = "duplicate_scenario_id"
)

// DefaultMaxPromptChars bounds the final prompt length.
const DefaultMaxPromptChars = 16000

// Options configures an Enricher.
type Options struct {
	// DatasetVersion namespaces scenario ids.
	DatasetVersion string

	// InjectConstraints appends a MUST / MUST NOT block to each prompt.
	InjectConstraints bool

	// MaxPromptChars rejects longer prompts. Zero selects
	// DefaultMaxPromptChars; a negative value disables the check.
	MaxPromptChars int
}

// Report summarizes one enrichment pass.
type Report struct {
	Input             int            `json:"input"`
	Accepted          int            `json:"accepted"`
	Rejected          int            `json:"rejected"`
	ObligationMissing int            `json:"obligation_missing"`
	ByRisk            map[string]int `json:"by_risk"`
	ByDomain          map[string]int `json:"by_domain"`
	ByRejectReason    map[string]int `json:"by_reject_reason"`
}

// Enricher builds scenarios from candidates.
type Enricher struct {
	index   *obligation.Index
	domains *catalog.DomainCatalog
	policy  *catalog.RiskPolicy
	opts    Options
}

// New returns an Enricher. Nil domains or policy select the built-in
// defaults.
func New(index *obligation.Index, domains *catalog.DomainCatalog, policy *catalog.RiskPolicy, opts Options) *Enricher {
	if domains == nil {
		domains = catalog.DefaultDomains()
	}
	if policy == nil {
		policy = catalog.DefaultRiskPolicy()
	}
	if opts.MaxPromptChars == 0 {
		opts.MaxPromptChars = DefaultMaxPromptChars
	}
	return &Enricher{index: index, domains: domains, policy: policy, opts: opts}
}

// Enrich processes candidates in order. Scenario ids are unique in the
// result; a candidate whose id collides with an earlier one is rejected.
func (e *Enricher) Enrich(cands []types.CandidateScenario) ([]types.Scenario, []types.RejectRecord, Report) {
	rep := Report{
		Input:          len(cands),
		ByRisk:         map[string]int{},
		ByDomain:       map[string]int{},
		ByRejectReason: map[string]int{},
	}
	seen := make(map[string]struct{}, len(cands))
	scenarios := make([]types.Scenario, 0, len(cands))
	var rejects []types.RejectRecord

	for _, c := range cands {
		sc, reason, detail := e.enrichOne(c)
		if reason == "" {
			if _, dup := seen[sc.ScenarioID]; dup {
				reason, detail = RejectDuplicateScene, sc.ScenarioID
			}
		}
		if reason != "" {
			rejects = append(rejects, types.RejectRecord{
				CandidateID:    c.CandidateID,
				BaseScenarioID: c.BaseScenarioID,
				Reason:         reason,
				Detail:         detail,
			})
			rep.Rejected++
			rep.ByRejectReason[reason]++
			continue
		}
		seen[sc.ScenarioID] = struct{}{}
		scenarios = append(scenarios, sc)
		rep.Accepted++
		rep.ByRisk[string(sc.RiskLevel)]++
		rep.ByDomain[sc.Domain]++
		if sc.Metadata.ObligationMissing {
			rep.ObligationMissing++
		}
	}
	return scenarios, rejects, rep
}

func (e *Enricher) enrichOne(c types.CandidateScenario) (types.Scenario, string, string) {
	if strings.TrimSpace(c.Prompt) == "" {
		return types.Scenario{}, RejectEmptyPrompt, ""
	}

	hash := c.PromptHash
	if hash == "" {
		hash = dedup.Hash(c.Prompt)
	}

	industry := c.Domain
	if d, ok := e.domains.Lookup(c.Domain); ok && d.Industry != "" {
		industry = d.Industry
	}

	sc := types.Scenario{
		ScenarioID:     id.Stable(id.ScenarioNamespace, e.opts.DatasetVersion, hash),
		DatasetVersion: e.opts.DatasetVersion,
		Domain:         c.Domain,
		Industry:       industry,
		RiskReasons:    []string{},
		Constraints:    types.Constraints{Must: []string{}, MustNot: []string{}},
		SeedTrace: types.SeedTrace{
			ObligationIDs: []string{c.ObligationID},
			Sources:       []types.Source{},
		},
		MutationTrace: c.Mutation,
		RoleContext:   c.RoleContext,
		PromptHash:    hash,
		Prompt:        c.Prompt,
		Metadata: types.ScenarioMetadata{
			BaseScenarioID: c.BaseScenarioID,
			CandidateID:    c.CandidateID,
			TemplateID:     c.TemplateID,
		},
	}

	ob, ok := e.index.Lookup(c.ObligationID)
	if !ok {
		sc.Metadata.ObligationMissing = true
		sc.RiskLevel = types.RiskLow
		sc.GovernanceTriggers = Triggers(e.policy, c.Mutation.Family, c.Prompt, Signals{})
	} else {
		sc.Constraints = types.Constraints{
			Must:    append([]string{}, ob.Must...),
			MustNot: append([]string{}, ob.MustNot...),
		}
		sc.SeedTrace.Sources = []types.Source{ob.Source()}
		sc.RiskLevel, sc.RiskReasons = Classify(e.policy, c.Domain, &ob, c.Prompt)
		sc.GovernanceTriggers = Triggers(e.policy, c.Mutation.Family, c.Prompt, Signals{
			Oversight:   containsAny(obligationText(&ob), e.policy.OversightKeywords),
			Risk:        sc.RiskLevel != types.RiskLow,
			Constraints: !sc.Constraints.Empty(),
		})
		if e.opts.InjectConstraints && !sc.Constraints.Empty() {
			sc.Prompt = sc.Prompt + "\n\n" + ConstraintBlock(sc.Constraints)
		}
	}

	if e.opts.MaxPromptChars > 0 {
		if n := utf8.RuneCountInString(sc.Prompt); n > e.opts.MaxPromptChars {
			return types.Scenario{}, RejectPromptTooLong, fmt.Sprintf("%d > %d chars", n, e.opts.MaxPromptChars)
		}
	}
	return sc, "", ""
}

// ConstraintBlock renders constraints as the text appended to prompts.
func ConstraintBlock(c types.Constraints) string {
	var b strings.Builder
	b.WriteString("Constraints:")
	if len(c.Must) > 0 {
		b.WriteString("\nMUST:")
		for _, m := range c.Must {
			b.WriteString("\n- ")
			b.WriteString(m)
		}
	}
	if len(c.MustNot) > 0 {
		b.WriteString("\nMUST NOT:")
		for _, m := range c.MustNot {
			b.WriteString("\n- ")
			b.WriteString(m)
		}
	}
	return b.String()
}
