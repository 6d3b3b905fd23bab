// Package render turns obligations into base scenario prompts by filling
// catalog templates with drawn roles, org contexts, verbs and variables.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jdziat/govbench/pkg/catalog"
	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/rng"
	"github.com/jdziat/govbench/pkg/types"
)

// DefaultPerObligation is the number of base scenarios per obligation.
const DefaultPerObligation = 3

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Renderer produces base scenarios. It holds only read-only catalogs.
type Renderer struct {
	roles         *catalog.RoleCatalog
	orgs          *catalog.OrgContextCatalog
	activities    *catalog.ActivityCatalog
	domains       *catalog.DomainCatalog
	templates     *catalog.TemplateCatalog
	perObligation int
}

// New returns a Renderer over set. perObligation <= 0 selects
// DefaultPerObligation.
func New(set *catalog.Set, perObligation int) *Renderer {
	if perObligation <= 0 {
		perObligation = DefaultPerObligation
	}
	domains := set.Domains
	if domains == nil {
		domains = catalog.DefaultDomains()
	}
	return &Renderer{
		roles:         set.Roles,
		orgs:          set.OrgContexts,
		activities:    set.Activities,
		domains:       domains,
		templates:     set.Templates,
		perObligation: perObligation,
	}
}

// PerObligation returns the number of base scenarios drawn per obligation.
func (r *Renderer) PerObligation() int { return r.perObligation }

// Classify returns the first domain, in catalog order, with a keyword
// present in the obligation's lower-cased statements. Obligations matching
// nothing fall into catalog.DefaultDomain.
func Classify(domains *catalog.DomainCatalog, ob types.Obligation) catalog.Domain {
	text := strings.ToLower(strings.Join(append(append([]string{}, ob.Must...), ob.MustNot...), " "))
	for _, d := range domains.Domains {
		for _, kw := range d.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return d
			}
		}
	}
	if d, ok := domains.Lookup(catalog.DefaultDomain); ok {
		return d
	}
	return catalog.Domain{ID: catalog.DefaultDomain, Industry: catalog.DefaultDomain}
}

// Render produces PerObligation base scenarios for each obligation in the
// given order. Per scenario the generator is consumed as: template, role,
// org context, verb, then each template variable in sorted name order.
func (r *Renderer) Render(obligations []types.Obligation, g *rng.Generator) ([]types.BaseScenario, error) {
	out := make([]types.BaseScenario, 0, len(obligations)*r.perObligation)
	for _, ob := range obligations {
		domain := Classify(r.domains, ob)
		pool := r.templates.Pool(domain.ID)
		verbs := r.activities.Verbs(domain.ID)
		if len(pool) == 0 || len(r.roles.Roles) == 0 || len(r.orgs.OrgContexts) == 0 || len(verbs) == 0 {
			return nil, pkgerrors.NewValidationError("catalogs", fmt.Sprintf("nothing to draw from for domain %q", domain.ID))
		}

		for i := range r.perObligation {
			tmpl := rng.Pick(g, pool)
			role := rng.Pick(g, r.roles.Roles)
			org := rng.Pick(g, r.orgs.OrgContexts)
			verb := rng.Pick(g, verbs)

			drawn := map[string]string{"verb": verb}
			for _, name := range sortedKeys(tmpl.Vars) {
				drawn[name] = rng.Pick(g, tmpl.Vars[name])
			}

			vars := map[string]string{
				"assistant_role": role.AssistantRole,
				"user_role":      role.UserRole,
				"org_context":    org,
				"domain":         domain.ID,
				"industry":       domain.Industry,
				"obligation_id":  ob.ObligationID,
				"must":           joinOrNone(ob.Must),
				"must_not":       joinOrNone(ob.MustNot),
			}
			for k, v := range drawn {
				vars[k] = v
			}

			prompt, err := Fill(tmpl.Text, vars)
			if err != nil {
				return nil, fmt.Errorf("template %q: %w", tmpl.TemplateID, err)
			}

			out = append(out, types.BaseScenario{
				BaseScenarioID: fmt.Sprintf("%s-b%02d", ob.ObligationID, i+1),
				ObligationID:   ob.ObligationID,
				Domain:         domain.ID,
				RoleContext: types.RoleContext{
					AssistantRole: role.AssistantRole,
					UserRole:      role.UserRole,
					OrgContext:    org,
				},
				TemplateID: tmpl.TemplateID,
				RenderVars: drawn,
				Prompt:     prompt,
			})
		}
	}
	return out, nil
}

// Fill replaces every {name} in text with vars[name]. A placeholder with no
// entry in vars is a configuration error.
func Fill(text string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", pkgerrors.NewValidationError("template", "unresolved placeholders: "+strings.Join(missing, ", "))
	}
	return out, nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
