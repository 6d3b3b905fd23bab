// Package perturb applies catalog mutations to base scenarios.
package perturb

import (
	"fmt"
	"sort"

	"github.com/jdziat/govbench/pkg/catalog"
	"github.com/jdziat/govbench/pkg/render"
	"github.com/jdziat/govbench/pkg/rng"
	"github.com/jdziat/govbench/pkg/types"
)

// DefaultKPerBase is the number of mutations drawn per base scenario.
const DefaultKPerBase = 2

// Perturbator draws mutations for base scenarios.
type Perturbator struct {
	mutations []types.MutationSpec
	kPerBase  int
}

// New returns a Perturbator over the mutation catalog. kPerBase <= 0
// selects DefaultKPerBase.
func New(mutations *catalog.MutationCatalog, kPerBase int) *Perturbator {
	if kPerBase <= 0 {
		kPerBase = DefaultKPerBase
	}
	return &Perturbator{mutations: mutations.Mutations, kPerBase: kPerBase}
}

// KPerBase returns the number of mutations drawn per base scenario.
func (p *Perturbator) KPerBase() int { return p.kPerBase }

// Perturb returns KPerBase candidates per base scenario, in input order.
// Per candidate the generator is consumed as: mutation index, then each
// parameter in sorted key order (list parameters only).
func (p *Perturbator) Perturb(bases []types.BaseScenario, g *rng.Generator) ([]types.CandidateScenario, error) {
	if len(p.mutations) == 0 {
		return nil, fmt.Errorf("perturb: mutation catalog is empty")
	}
	out := make([]types.CandidateScenario, 0, len(bases)*p.kPerBase)
	for _, base := range bases {
		for j := range p.kPerBase {
			spec := rng.Pick(g, p.mutations)
			applied, err := Apply(spec, g)
			if err != nil {
				return nil, err
			}

			cand := types.CandidateScenario{
				BaseScenario: base,
				CandidateID:  fmt.Sprintf("%s-m%02d", base.BaseScenarioID, j+1),
				BasePrompt:   base.Prompt,
				Mutation:     applied,
			}
			cand.Prompt = base.Prompt + "\n\n" + applied.Text
			out = append(out, cand)
		}
	}
	return out, nil
}

// Apply resolves spec's parameters with g and formats its template. List
// parameters draw one element; scalars pass through.
func Apply(spec types.MutationSpec, g *rng.Generator) (types.AppliedMutation, error) {
	keys := make([]string, 0, len(spec.Params))
	for k := range spec.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	chosen := make(map[string]any, len(keys))
	vars := make(map[string]string, len(keys))
	for _, k := range keys {
		v := spec.Params[k]
		switch list := v.(type) {
		case []any:
			if len(list) == 0 {
				return types.AppliedMutation{}, fmt.Errorf("mutation %q: list parameter %q is empty", spec.MutationID, k)
			}
			v = rng.Pick(g, list)
		case []string:
			if len(list) == 0 {
				return types.AppliedMutation{}, fmt.Errorf("mutation %q: list parameter %q is empty", spec.MutationID, k)
			}
			v = rng.Pick(g, list)
		}
		chosen[k] = v
		vars[k] = fmt.Sprint(v)
	}

	text, err := render.Fill(spec.Template, vars)
	if err != nil {
		return types.AppliedMutation{}, fmt.Errorf("mutation %q: %w", spec.MutationID, err)
	}
	applied := types.AppliedMutation{
		MutationID: spec.MutationID,
		Family:     spec.Family,
		Text:       text,
	}
	if len(chosen) > 0 {
		applied.Params = chosen
	}
	return applied, nil
}
