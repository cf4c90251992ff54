package classify

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadBandsCSV reads a three-column CSV (band, freq_start_khz,
// freq_end_khz) with an optional header row. Comment lines ("#...")
// and blank lines are skipped. Mirrors the teacher's skew.parseCSV
// tolerance for a leading header/comment block.
func LoadBandsCSV(path string) ([]BandRange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classify: open bands file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var bands []BandRange
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("classify: parse bands csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		first := strings.TrimSpace(record[0])
		if first == "" || strings.HasPrefix(first, "#") || strings.EqualFold(first, "band") {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("classify: bad bands row %q", strings.Join(record, ","))
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("classify: bad start freq for band %s: %w", first, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("classify: bad end freq for band %s: %w", first, err)
		}
		bands = append(bands, BandRange{Band: first, StartKHz: start, EndKHz: end})
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("classify: %s contained no band rows", path)
	}
	return bands, nil
}

// modeRangesFile is the on-disk YAML shape: band -> mode -> {start, end},
// the same nesting the original mode sub-range table uses, loaded with
// yaml.v3 following spot.mode_alloc's use of the same library.
type modeRangesFile map[string]map[string]struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// LoadModeRangesYAML reads the per-band mode sub-range table.
func LoadModeRangesYAML(path string) (map[string][]ModeRange, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: open modes file %s: %w", path, err)
	}
	var parsed modeRangesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("classify: parse modes yaml: %w", err)
	}

	out := make(map[string][]ModeRange, len(parsed))
	for band, modes := range parsed {
		ranges := make([]ModeRange, 0, len(modes))
		for mode, r := range modes {
			ranges = append(ranges, ModeRange{Mode: mode, Start: r.Start, End: r.End})
		}
		out[band] = ranges
	}
	return out, nil
}
