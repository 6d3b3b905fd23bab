// Package catalog defines the read-only documents that parameterize a run
// (roles, org contexts, activities, domains, templates, mutations, the judge
// rubric and the risk keyword policy) and loads them with fail-fast
// validation.
package catalog

import (
	"fmt"
	"sort"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/types"
)

// DefaultDomain is the domain assigned when no keyword matches.
const DefaultDomain = "general"

// Role is one assistant/user pairing.
type Role struct {
	ID            string `yaml:"id"`
	AssistantRole string `yaml:"assistant_role" validate:"required"`
	UserRole      string `yaml:"user_role" validate:"required"`
}

// RoleCatalog lists the roles scenarios are rendered with.
type RoleCatalog struct {
	Version string `yaml:"version" validate:"required"`
	Roles   []Role `yaml:"roles" validate:"required,min=1,dive"`
}

// OrgContextCatalog lists organizational settings.
type OrgContextCatalog struct {
	Version     string   `yaml:"version" validate:"required"`
	OrgContexts []string `yaml:"org_contexts" validate:"required,min=1,dive,required"`
}

// ActivityCatalog maps a domain to the verbs available in it.
type ActivityCatalog struct {
	Version    string              `yaml:"version" validate:"required"`
	Activities map[string][]string `yaml:"activities" validate:"required,min=1,dive,min=1,dive,required"`
}

// Verbs returns the verb pool for domain: the domain's own verbs, else the
// default domain's, else every verb in sorted domain order.
func (c *ActivityCatalog) Verbs(domain string) []string {
	if verbs := c.Activities[domain]; len(verbs) > 0 {
		return verbs
	}
	if verbs := c.Activities[DefaultDomain]; len(verbs) > 0 {
		return verbs
	}
	keys := make([]string, 0, len(c.Activities))
	for k := range c.Activities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var all []string
	for _, k := range keys {
		all = append(all, c.Activities[k]...)
	}
	return all
}

// Domain describes one scenario domain and how obligations are matched to it.
type Domain struct {
	ID       string   `yaml:"id" validate:"required"`
	Industry string   `yaml:"industry"`
	Keywords []string `yaml:"keywords"`
}

// DomainCatalog lists domains in match priority order.
type DomainCatalog struct {
	Version string   `yaml:"version" validate:"required"`
	Domains []Domain `yaml:"domains" validate:"required,min=1,dive"`
}

// Lookup returns the domain with the given id.
func (c *DomainCatalog) Lookup(id string) (Domain, bool) {
	for _, d := range c.Domains {
		if d.ID == id {
			return d, true
		}
	}
	return Domain{}, false
}

// DefaultDomains returns the built-in domain catalog.
func DefaultDomains() *DomainCatalog {
	return &DomainCatalog{
		Version: "builtin-1",
		Domains: []Domain{
			{ID: "privacy", Industry: "technology", Keywords: []string{"gdpr", "privacy", "personal data", "data subject"}},
			{ID: "hiring", Industry: "human_resources", Keywords: []string{"hiring", "resume", "candidate", "recruit"}},
			{ID: "finance", Industry: "financial_services", Keywords: []string{"loan", "credit", "mortgage", "lending"}},
			{ID: DefaultDomain, Industry: "general"},
		},
	}
}

// Template is a base-scenario prompt with {placeholder} slots.
type Template struct {
	TemplateID string              `yaml:"template_id" validate:"required"`
	Domain     string              `yaml:"domain"`
	Text       string              `yaml:"text" validate:"required"`
	Vars       map[string][]string `yaml:"vars" validate:"omitempty,dive,min=1"`
}

// TemplateCatalog lists base-scenario templates.
type TemplateCatalog struct {
	Version   string     `yaml:"version" validate:"required"`
	Templates []Template `yaml:"templates" validate:"required,min=1,dive"`
}

// Pool returns the templates scoped to domain, or every template when the
// domain has none. Catalog order is preserved.
func (c *TemplateCatalog) Pool(domain string) []Template {
	var pool []Template
	for _, t := range c.Templates {
		if t.Domain == domain {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		return c.Templates
	}
	return pool
}

// MutationCatalog lists perturbations.
type MutationCatalog struct {
	Version   string               `yaml:"version" validate:"required"`
	Mutations []types.MutationSpec `yaml:"mutations" validate:"required,min=1,dive"`
}

// ObligationCatalog is the obligations document.
type ObligationCatalog struct {
	Version     string             `yaml:"version" validate:"required"`
	Obligations []types.Obligation `yaml:"obligations"`
}

// Scale is the inclusive integer range of rubric scores.
type Scale struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether score lies within the scale.
func (s Scale) Contains(score int) bool {
	return score >= s.Min && score <= s.Max
}

// Dimension is one rubric scoring axis.
type Dimension struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Rubric is the versioned scoring guide given to the judge.
type Rubric struct {
	Version    string             `yaml:"version" validate:"required"`
	Scale      Scale              `yaml:"scale"`
	Dimensions []Dimension        `yaml:"dimensions" validate:"required,min=1,dive"`
	Weights    map[string]float64 `yaml:"weights" validate:"omitempty,dive,gte=0"`
}

// DimensionIDs returns dimension ids in rubric order.
func (r *Rubric) DimensionIDs() []string {
	ids := make([]string, len(r.Dimensions))
	for i, d := range r.Dimensions {
		ids[i] = d.ID
	}
	return ids
}

// Weight returns the aggregation weight of a dimension. Dimensions absent
// from the weight table weigh 1.
func (r *Rubric) Weight(id string) float64 {
	if w, ok := r.Weights[id]; ok {
		return w
	}
	return 1
}

// check enforces the cross-field rules the struct tags cannot express.
func (r *Rubric) check() error {
	if r.Scale.Min >= r.Scale.Max {
		return pkgerrors.NewValidationError("rubric.scale", fmt.Sprintf("min (%d) must be below max (%d)", r.Scale.Min, r.Scale.Max))
	}
	seen := make(map[string]bool, len(r.Dimensions))
	for i, d := range r.Dimensions {
		if seen[d.ID] {
			return pkgerrors.NewValidationError(fmt.Sprintf("rubric.dimensions[%d].id", i), fmt.Sprintf("duplicate dimension %q", d.ID))
		}
		if types.ReservedDimensionID(d.ID) {
			return pkgerrors.NewValidationError(fmt.Sprintf("rubric.dimensions[%d].id", i), fmt.Sprintf("dimension id %q is reserved", d.ID))
		}
		seen[d.ID] = true
	}
	for id := range r.Weights {
		if !seen[id] {
			return pkgerrors.NewValidationError("rubric.weights", fmt.Sprintf("weight for unknown dimension %q", id))
		}
	}
	return nil
}
