package model

import "slices"

// StrategyKind names the extraction algorithm a council is scraped with.
type StrategyKind string

const (
	KindHTML   StrategyKind = "html"
	KindPaged  StrategyKind = "paged"
	KindCMIS   StrategyKind = "cmis"
	KindModGov StrategyKind = "modgov"
	KindJSON   StrategyKind = "json"
)

// Valid reports whether k is a known strategy kind.
func (k StrategyKind) Valid() bool {
	switch k {
	case KindHTML, KindPaged, KindCMIS, KindModGov, KindJSON:
		return true
	}
	return false
}

// Tag returns the implicit tag every council of this kind carries.
// Paged councils are HTML scrapers and share the "html" tag.
func (k StrategyKind) Tag() string {
	if k == KindPaged {
		return string(KindHTML)
	}
	return string(k)
}

// CouncilDescriptor describes how one council is scraped. Descriptors are
// loaded once from the catalogue and never mutated afterwards.
type CouncilDescriptor struct {
	Code     string       `yaml:"-" json:"code"`
	Name     string       `yaml:"name" json:"name,omitempty"`
	Kind     StrategyKind `yaml:"kind" json:"kind"`
	BaseURL  string       `yaml:"base_url" json:"base_url"`
	Tags     []string     `yaml:"tags" json:"tags,omitempty"`
	Disabled bool         `yaml:"disabled" json:"disabled"`
	MaxPages int          `yaml:"max_pages" json:"max_pages,omitempty"`

	ListPage ListPage       `yaml:"list_page" json:"list_page,omitempty"`
	Fields   FieldSelectors `yaml:"fields" json:"fields,omitempty"`
	CMIS     CMISConfig     `yaml:"cmis" json:"cmis,omitempty"`
	JSON     JSONFeedConfig `yaml:"json" json:"json,omitempty"`
}

// ListPage locates the councillor list on an HTML page.
type ListPage struct {
	Container string `yaml:"container" json:"container,omitempty"`
	Item      string `yaml:"item" json:"item,omitempty"`
	NextPage  string `yaml:"next_page" json:"next_page,omitempty"`
}

// FieldSelectors maps record fields to CSS selectors evaluated relative to
// one list item.
type FieldSelectors struct {
	URL               string   `yaml:"url" json:"url,omitempty"`
	Identifier        string   `yaml:"identifier" json:"identifier,omitempty"`
	IdentifierAttr    string   `yaml:"identifier_attr" json:"identifier_attr,omitempty"`
	IdentifierPattern string   `yaml:"identifier_pattern" json:"identifier_pattern,omitempty"`
	Name              string   `yaml:"name" json:"name,omitempty"`
	Party             string   `yaml:"party" json:"party,omitempty"`
	PartyAttr         string   `yaml:"party_attr" json:"party_attr,omitempty"`
	Division          string   `yaml:"division" json:"division,omitempty"`
	Email             string   `yaml:"email" json:"email,omitempty"`
	Photo             string   `yaml:"photo" json:"photo,omitempty"`
	SkipText          []string `yaml:"skip_text" json:"skip_text,omitempty"`
}

// CMISConfig configures a CMIS council.
type CMISConfig struct {
	DivisionLabel string     `yaml:"division_label" json:"division_label,omitempty"`
	Wards         []CMISWard `yaml:"wards" json:"wards,omitempty"`
	FetchEmails   bool       `yaml:"fetch_emails" json:"fetch_emails,omitempty"`
}

// CMISWard is one per-division listing endpoint, relative to the base URL.
type CMISWard struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// JSONFeedConfig maps a JSON member feed to records using gjson paths.
type JSONFeedConfig struct {
	Items       string `yaml:"items" json:"items,omitempty"`
	Identifier  string `yaml:"identifier" json:"identifier,omitempty"`
	URL         string `yaml:"url" json:"url,omitempty"`
	URLTemplate string `yaml:"url_template" json:"url_template,omitempty"`
	Name        string `yaml:"name" json:"name,omitempty"`
	Party       string `yaml:"party" json:"party,omitempty"`
	Division    string `yaml:"division" json:"division,omitempty"`
	Email       string `yaml:"email" json:"email,omitempty"`
}

// Clone returns a copy that shares no slices with d.
func (d CouncilDescriptor) Clone() CouncilDescriptor {
	d.Tags = slices.Clone(d.Tags)
	d.Fields.SkipText = slices.Clone(d.Fields.SkipText)
	d.CMIS.Wards = slices.Clone(d.CMIS.Wards)
	return d
}

// AllTags returns the descriptor's explicit tags plus the implicit kind tag.
func (d CouncilDescriptor) AllTags() []string {
	tags := slices.Clone(d.Tags)
	if kt := d.Kind.Tag(); kt != "" && !slices.Contains(tags, kt) {
		tags = append(tags, kt)
	}
	return tags
}

// HasTags reports whether every required tag is carried by the descriptor.
func (d CouncilDescriptor) HasTags(required ...string) bool {
	all := d.AllTags()
	for _, t := range required {
		if !slices.Contains(all, t) {
			return false
		}
	}
	return true
}
