package questions

import (
	_ "embed"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownSubject = errors.New("unknown subject")
	ErrUnknownDomain  = errors.New("unknown domain")
	ErrNoDomains      = errors.New("at least one domain is required")
)

//go:embed catalog.yaml
var catalogYAML []byte

type Domain struct {
	ID    string `yaml:"id" json:"id"`
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

type Subject struct {
	Name    string   `yaml:"name" json:"name"`
	Domains []Domain `yaml:"domains" json:"domains"`
}

type Catalog struct {
	Subjects []Subject `yaml:"subjects" json:"subjects"`
}

// LoadCatalog parses the embedded subject catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	if len(c.Subjects) == 0 {
		return nil, errors.New("catalog has no subjects")
	}
	seen := make(map[string]bool)
	for _, s := range c.Subjects {
		if s.Name == "" || len(s.Domains) == 0 {
			return nil, errors.Errorf("subject %q has no domains", s.Name)
		}
		for _, d := range s.Domains {
			if d.Code == "" || d.ID == "" {
				return nil, errors.Errorf("subject %q has a domain without id or code", s.Name)
			}
			if seen[d.Code] {
				return nil, errors.Errorf("domain code %q is listed twice", d.Code)
			}
			seen[d.Code] = true
		}
	}
	return &c, nil
}

func (c *Catalog) Subject(name string) (*Subject, bool) {
	for i := range c.Subjects {
		if strings.EqualFold(c.Subjects[i].Name, name) {
			return &c.Subjects[i], true
		}
	}
	return nil, false
}

// Resolve maps the selected domains of subject to their question bank codes.
// A selection may name a domain by id or by code.
func (c *Catalog) Resolve(subject string, selected []string) (*Subject, []string, error) {
	s, ok := c.Subject(subject)
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownSubject, "%q", subject)
	}
	if len(selected) == 0 {
		return nil, nil, ErrNoDomains
	}

	codes := make([]string, 0, len(selected))
	seen := make(map[string]bool)
	for _, sel := range selected {
		d, ok := s.domain(sel)
		if !ok {
			return nil, nil, errors.Wrapf(ErrUnknownDomain, "%q in %s", sel, s.Name)
		}
		if !seen[d.Code] {
			seen[d.Code] = true
			codes = append(codes, d.Code)
		}
	}
	return s, codes, nil
}

func (s *Subject) domain(key string) (Domain, bool) {
	for _, d := range s.Domains {
		if d.ID == key || d.Code == key {
			return d, true
		}
	}
	return Domain{}, false
}

// Label returns the display label of a domain code, or the code itself.
func (s *Subject) Label(code string) string {
	if d, ok := s.domain(code); ok {
		return d.Label
	}
	return code
}
