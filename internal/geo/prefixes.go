package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
)

// PrefixRow is one row of the static fallback table: a callsign regex
// anchored at the start of the string, and the locator/country/continent
// it resolves to when that regex matches.
type PrefixRow struct {
	Pattern   string
	regex     *regexp.Regexp
	Locator   string
	Country   string
	Continent string
}

// PrefixTable holds prefix rows in file order; the first matching row
// wins, mirroring the Python reference resolver's linear re.match scan.
type PrefixTable struct {
	rows []PrefixRow
}

// NewPrefixTable compiles the provided rows, anchoring each pattern at
// the start of the callsign (an implicit ".*" suffix is allowed, so a
// prefix match is sufficient — the original semantics are "starts with").
func NewPrefixTable(rows []PrefixRow) (*PrefixTable, error) {
	compiled := make([]PrefixRow, 0, len(rows))
	for _, r := range rows {
		re, err := regexp.Compile("^(?:" + r.Pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("geo: compile prefix pattern %q: %w", r.Pattern, err)
		}
		r.regex = re
		compiled = append(compiled, r)
	}
	return &PrefixTable{rows: compiled}, nil
}

// Resolve returns the locator for the first matching row, or "" if none match.
func (t *PrefixTable) Resolve(callsign string) string {
	row, ok := t.match(callsign)
	if !ok {
		return ""
	}
	return row.Locator
}

// ResolveCountryContinent independently resolves country/continent from
// the same table; best-effort, empty strings on no match.
func (t *PrefixTable) ResolveCountryContinent(callsign string) (country, continent string) {
	row, ok := t.match(callsign)
	if !ok {
		return "", ""
	}
	return row.Country, row.Continent
}

func (t *PrefixTable) match(callsign string) (PrefixRow, bool) {
	if t == nil {
		return PrefixRow{}, false
	}
	upper := strings.ToUpper(strings.TrimSpace(callsign))
	for _, row := range t.rows {
		if row.regex.MatchString(upper) {
			return row, true
		}
	}
	return PrefixRow{}, false
}

// Store provides atomic access to the current prefix table, following
// the same hot-swap shape as the teacher's skew.Store.
type Store struct {
	ptr atomic.Pointer[PrefixTable]
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the currently stored table.
func (s *Store) Set(table *PrefixTable) {
	if s == nil {
		return
	}
	s.ptr.Store(table)
}

// Resolve delegates to the current table, returning "" if none is loaded.
func (s *Store) Resolve(callsign string) string {
	if s == nil {
		return ""
	}
	return s.ptr.Load().Resolve(callsign)
}

// ResolveCountryContinent delegates to the current table.
func (s *Store) ResolveCountryContinent(callsign string) (string, string) {
	if s == nil {
		return "", ""
	}
	t := s.ptr.Load()
	if t == nil {
		return "", ""
	}
	return t.ResolveCountryContinent(callsign)
}

// LoadPrefixesCSV reads a (regex, locator, country, continent) CSV, in
// the teacher's skew.parseCSV tolerant style: header/comment rows
// starting with "#" or "regex" are skipped, leading whitespace trimmed.
func LoadPrefixesCSV(path string) (*PrefixTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open prefixes file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows []PrefixRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("geo: parse prefixes csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		first := strings.TrimSpace(record[0])
		if first == "" || strings.HasPrefix(first, "#") || strings.EqualFold(first, "regex") {
			continue
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("geo: bad prefixes row %q", strings.Join(record, ","))
		}
		rows = append(rows, PrefixRow{
			Pattern:   first,
			Locator:   strings.TrimSpace(record[1]),
			Country:   strings.TrimSpace(record[2]),
			Continent: strings.TrimSpace(record[3]),
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("geo: %s contained no prefix rows", path)
	}
	return NewPrefixTable(rows)
}
