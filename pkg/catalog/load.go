package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
)

// NewValidator returns a validator that reports fields by their yaml names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationFailure converts a validator error into a *pkgerrors.ValidationError
// naming the first failing field under doc.
func ValidationFailure(doc string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		msg := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
		}
		return pkgerrors.NewValidationErrorWithCause(doc+"."+field, msg, err)
	}
	return pkgerrors.NewValidationErrorWithCause(doc, err.Error(), err)
}

var validate = NewValidator()

// Decode reads one YAML (or JSON) document from r into out and validates it.
// Unknown fields are rejected.
func Decode(doc string, r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.NewValidationError(doc, "document is empty")
		}
		return pkgerrors.NewValidationErrorWithCause(doc, "malformed document: "+err.Error(), err)
	}
	if err := validate.Struct(out); err != nil {
		return ValidationFailure(doc, err)
	}
	return nil
}

// DecodeFile decodes the document at path.
func DecodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.NewValidationErrorWithCause(path, "cannot read catalog", err)
	}
	return Decode(path, bytes.NewReader(data), out)
}

// Paths locates the catalog documents of a run. Domains and RiskPolicy are
// optional; the built-in defaults apply when they are empty.
type Paths struct {
	Obligations string `yaml:"obligations" env:"OBLIGATIONS" validate:"required"`
	Roles       string `yaml:"roles" env:"ROLES" validate:"required"`
	OrgContexts string `yaml:"org_contexts" env:"ORG_CONTEXTS" validate:"required"`
	Activities  string `yaml:"activities" env:"ACTIVITIES" validate:"required"`
	Domains     string `yaml:"domains" env:"DOMAINS"`
	Templates   string `yaml:"templates" env:"TEMPLATES" validate:"required"`
	Mutations   string `yaml:"mutations" env:"MUTATIONS" validate:"required"`
	Rubric      string `yaml:"rubric" env:"RUBRIC" validate:"required"`
	RiskPolicy  string `yaml:"risk_policy" env:"RISK_POLICY"`
}

// Files returns every configured path, in a fixed order.
func (p Paths) Files() []string {
	var files []string
	for _, f := range []string{p.Obligations, p.Roles, p.OrgContexts, p.Activities, p.Domains, p.Templates, p.Mutations, p.Rubric, p.RiskPolicy} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

// Set is a loaded, validated group of catalogs.
type Set struct {
	Obligations *ObligationCatalog
	Roles       *RoleCatalog
	OrgContexts *OrgContextCatalog
	Activities  *ActivityCatalog
	Domains     *DomainCatalog
	Templates   *TemplateCatalog
	Mutations   *MutationCatalog
	Rubric      *Rubric
	RiskPolicy  *RiskPolicy
}

// Load reads and validates every catalog named in p.
func Load(p Paths) (*Set, error) {
	set := &Set{
		Obligations: &ObligationCatalog{},
		Roles:       &RoleCatalog{},
		OrgContexts: &OrgContextCatalog{},
		Activities:  &ActivityCatalog{},
		Templates:   &TemplateCatalog{},
		Mutations:   &MutationCatalog{},
		Rubric:      &Rubric{},
	}
	docs := []struct {
		path string
		out  any
	}{
		{p.Obligations, set.Obligations},
		{p.Roles, set.Roles},
		{p.OrgContexts, set.OrgContexts},
		{p.Activities, set.Activities},
		{p.Templates, set.Templates},
		{p.Mutations, set.Mutations},
		{p.Rubric, set.Rubric},
	}
	for _, d := range docs {
		if d.path == "" {
			return nil, pkgerrors.NewValidationError("catalogs", "missing catalog path")
		}
		if err := DecodeFile(d.path, d.out); err != nil {
			return nil, err
		}
	}

	set.Domains = DefaultDomains()
	if p.Domains != "" {
		set.Domains = &DomainCatalog{}
		if err := DecodeFile(p.Domains, set.Domains); err != nil {
			return nil, err
		}
	}
	set.RiskPolicy = DefaultRiskPolicy()
	if p.RiskPolicy != "" {
		set.RiskPolicy = &RiskPolicy{}
		if err := DecodeFile(p.RiskPolicy, set.RiskPolicy); err != nil {
			return nil, err
		}
	}

	if err := set.Check(); err != nil {
		return nil, err
	}
	return set, nil
}

// Check runs the cross-document rules. Load calls it; callers that build a
// Set in code should call it themselves.
func (s *Set) Check() error {
	if s.Roles == nil || s.OrgContexts == nil || s.Activities == nil || s.Templates == nil || s.Mutations == nil || s.Rubric == nil {
		return pkgerrors.NewValidationError("catalogs", "incomplete catalog set")
	}
	if s.Domains == nil {
		s.Domains = DefaultDomains()
	}
	if s.RiskPolicy == nil {
		s.RiskPolicy = DefaultRiskPolicy()
	}
	if err := s.Rubric.check(); err != nil {
		return err
	}

	templateIDs := make(map[string]bool, len(s.Templates.Templates))
	for i, t := range s.Templates.Templates {
		if templateIDs[t.TemplateID] {
			return pkgerrors.NewValidationError(fmt.Sprintf("templates[%d].template_id", i), fmt.Sprintf("duplicate template %q", t.TemplateID))
		}
		templateIDs[t.TemplateID] = true
		if t.Domain != "" {
			if _, ok := s.Domains.Lookup(t.Domain); !ok {
				return pkgerrors.NewValidationError(fmt.Sprintf("templates[%d].domain", i), fmt.Sprintf("unknown domain %q", t.Domain))
			}
		}
	}

	mutationIDs := make(map[string]bool, len(s.Mutations.Mutations))
	for i, m := range s.Mutations.Mutations {
		if mutationIDs[m.MutationID] {
			return pkgerrors.NewValidationError(fmt.Sprintf("mutations[%d].mutation_id", i), fmt.Sprintf("duplicate mutation %q", m.MutationID))
		}
		mutationIDs[m.MutationID] = true
		for k, v := range m.Params {
			if list, ok := v.([]any); ok && len(list) == 0 {
				return pkgerrors.NewValidationError(fmt.Sprintf("mutations[%d].params.%s", i, k), "list parameter is empty")
			}
		}
	}
	return nil
}
