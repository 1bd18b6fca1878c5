package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ValidationError is returned when a record cannot be constructed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid councillor: %s %s", e.Field, e.Reason)
}

// Councillor is one normalised councillor record. Construct it with
// NewCouncillor; the zero value is not valid.
type Councillor struct {
	URL          string
	Identifier   string
	Name         string
	Party        string
	Division     string
	Email        string
	PhotoURL     string
	StandingDown string
}

// NewCouncillor trims every field and validates that url and identifier are
// present. Party and division may be empty.
func NewCouncillor(url, identifier, name, party, division string) (Councillor, error) {
	c := Councillor{
		URL:        strings.TrimSpace(url),
		Identifier: strings.TrimSpace(identifier),
		Name:       strings.TrimSpace(name),
		Party:      strings.TrimSpace(party),
		Division:   strings.TrimSpace(division),
	}
	if c.URL == "" {
		return Councillor{}, &ValidationError{Field: "url", Reason: "is empty"}
	}
	if c.Identifier == "" {
		return Councillor{}, &ValidationError{Field: "identifier", Reason: "is empty"}
	}
	return c, nil
}

// WithContact returns a copy carrying the optional contact fields.
func (c Councillor) WithContact(email, photoURL string) Councillor {
	c.Email = strings.TrimSpace(email)
	c.PhotoURL = strings.TrimSpace(photoURL)
	return c
}

// Key returns the record's identity within a run.
func (c Councillor) Key() RecordKey {
	return RecordKey{Identifier: c.Identifier, URL: c.URL}
}

// FileName returns a filesystem-safe name for the record.
func (c Councillor) FileName() string {
	return Slugify(c.Identifier) + "-" + Slugify(c.Name)
}

type councillorJSON struct {
	URL          string `json:"url"`
	Identifier   string `json:"raw_identifier"`
	Name         string `json:"raw_name"`
	Party        string `json:"raw_party"`
	Division     string `json:"raw_division"`
	Email        string `json:"email"`
	PhotoURL     string `json:"photo_url"`
	StandingDown string `json:"standing_down"`
}

// MarshalJSON emits the published record shape.
func (c Councillor) MarshalJSON() ([]byte, error) {
	return json.Marshal(councillorJSON(c))
}

// UnmarshalJSON reads the published record shape.
func (c *Councillor) UnmarshalJSON(data []byte) error {
	var raw councillorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Councillor(raw)
	return nil
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases s, strips accents and joins alphanumeric runs with "-".
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// RecordKey identifies a record within one council's result set.
type RecordKey struct {
	Identifier string
	URL        string
}

// RecordSet collects records keyed by (identifier, url). A later record
// with the same key replaces the earlier one but keeps its position.
type RecordSet struct {
	index   map[RecordKey]int
	records []Councillor
}

// NewRecordSet returns an empty set.
func NewRecordSet() *RecordSet {
	return &RecordSet{index: make(map[RecordKey]int)}
}

// Add inserts c, replacing any record with the same key. It reports whether
// an existing record was replaced.
func (s *RecordSet) Add(c Councillor) bool {
	if s.index == nil {
		s.index = make(map[RecordKey]int)
	}
	k := c.Key()
	if i, ok := s.index[k]; ok {
		s.records[i] = c
		return true
	}
	s.index[k] = len(s.records)
	s.records = append(s.records, c)
	return false
}

// Len returns the number of distinct records.
func (s *RecordSet) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in first-seen order.
func (s *RecordSet) Records() []Councillor {
	out := make([]Councillor, len(s.records))
	copy(out, s.records)
	return out
}
