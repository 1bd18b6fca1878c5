// Package catalogue loads the immutable council catalogue: which councils
// exist, how each is scraped, and how they are tagged.
package catalogue

import (
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/council-scraper/internal/model"
)

// Catalogue is a read-only mapping of council code to descriptor. It is safe
// for concurrent use.
type Catalogue struct {
	byCode map[string]model.CouncilDescriptor
	codes  []string
}

// Filter selects councils from the catalogue. An empty filter selects every
// enabled council.
type Filter struct {
	Codes           []string
	Tags            []string
	IncludeDisabled bool
}

type document struct {
	Councils map[string]model.CouncilDescriptor `yaml:"councils"`
}

// Load reads and validates a catalogue file.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalogue: read %s", path)
	}
	return Parse(data)
}

// Parse builds a catalogue from YAML.
func Parse(data []byte) (*Catalogue, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalogue: parse yaml")
	}

	descs := make([]model.CouncilDescriptor, 0, len(doc.Councils))
	for code, d := range doc.Councils {
		d.Code = strings.ToUpper(strings.TrimSpace(code))
		descs = append(descs, d)
	}
	return New(descs...)
}

// New builds a catalogue from descriptors, validating each one.
func New(descs ...model.CouncilDescriptor) (*Catalogue, error) {
	c := &Catalogue{byCode: make(map[string]model.CouncilDescriptor, len(descs))}
	for _, d := range descs {
		if err := Validate(d); err != nil {
			return nil, err
		}
		if _, dup := c.byCode[d.Code]; dup {
			return nil, eris.Errorf("catalogue: duplicate council %q", d.Code)
		}
		c.byCode[d.Code] = d.Clone()
		c.codes = append(c.codes, d.Code)
	}
	slices.Sort(c.codes)
	return c, nil
}

// Validate checks that a descriptor carries what its strategy kind needs.
func Validate(d model.CouncilDescriptor) error {
	if d.Code == "" {
		return eris.New("catalogue: council code is empty")
	}
	if !d.Kind.Valid() {
		return eris.Errorf("catalogue: %s: unknown kind %q (valid: html, paged, cmis, modgov, json)", d.Code, d.Kind)
	}
	if d.BaseURL == "" {
		return eris.Errorf("catalogue: %s: base_url is required", d.Code)
	}

	switch d.Kind {
	case model.KindHTML, model.KindPaged:
		if d.ListPage.Item == "" {
			return eris.Errorf("catalogue: %s: list_page.item is required for %s", d.Code, d.Kind)
		}
		if d.Kind == model.KindPaged && d.ListPage.NextPage == "" {
			return eris.Errorf("catalogue: %s: list_page.next_page is required for paged", d.Code)
		}
	case model.KindJSON:
		if d.JSON.Identifier == "" {
			return eris.Errorf("catalogue: %s: json.identifier is required", d.Code)
		}
		if d.JSON.URL == "" && d.JSON.URLTemplate == "" {
			return eris.Errorf("catalogue: %s: json.url or json.url_template is required", d.Code)
		}
	}
	return nil
}

// Get returns a copy of the descriptor for code.
func (c *Catalogue) Get(code string) (model.CouncilDescriptor, bool) {
	d, ok := c.byCode[strings.ToUpper(code)]
	return d.Clone(), ok
}

// Codes returns every council code in sorted order.
func (c *Catalogue) Codes() []string {
	return slices.Clone(c.codes)
}

// Len returns the number of councils.
func (c *Catalogue) Len() int {
	return len(c.codes)
}

// All returns a copy of every descriptor in code order.
func (c *Catalogue) All() []model.CouncilDescriptor {
	out := make([]model.CouncilDescriptor, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, c.byCode[code].Clone())
	}
	return out
}

// Disabled returns the disabled descriptors in code order.
func (c *Catalogue) Disabled() []model.CouncilDescriptor {
	var out []model.CouncilDescriptor
	for _, d := range c.All() {
		if d.Disabled {
			out = append(out, d)
		}
	}
	return out
}

// Select returns the descriptors matching f in code order. Unknown codes
// are an error.
func (c *Catalogue) Select(f Filter) ([]model.CouncilDescriptor, error) {
	candidates := c.All()
	if len(f.Codes) > 0 {
		candidates = candidates[:0:0]
		seen := make(map[string]bool, len(f.Codes))
		for _, code := range f.Codes {
			code = strings.ToUpper(strings.TrimSpace(code))
			if seen[code] {
				continue
			}
			seen[code] = true
			d, ok := c.byCode[code]
			if !ok {
				return nil, eris.Errorf("catalogue: unknown council %q", code)
			}
			candidates = append(candidates, d)
		}
	}

	var out []model.CouncilDescriptor
	for _, d := range candidates {
		if d.Disabled && !f.IncludeDisabled {
			continue
		}
		if !d.HasTags(f.Tags...) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
