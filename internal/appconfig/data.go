package appconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"holycluster/internal/classify"
	"holycluster/internal/clustersession"
	"holycluster/internal/geo"
)

// searchPaths tries path in the working directory, then its parent,
// matching the teacher's mode-allocation loading idiom so the binary
// can run either from the repo root or from a cmd/ subdirectory during
// development.
func searchPaths(path string) []string {
	return []string{path, filepath.Join("..", path)}
}

func readFirstExisting(path string) ([]byte, string, error) {
	var lastErr error
	for _, candidate := range searchPaths(path) {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, candidate, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("appconfig: %s not found in working dir or parent: %w", path, lastErr)
}

// LoadClusters reads the cluster endpoint CSV (hostname,port[,backlog_count]),
// skipping blank lines and '#'-prefixed comments. A present, positive
// third column enables that endpoint's one-shot "show/dx <n>" backlog
// request on connect; a missing or non-positive value leaves it disabled.
func LoadClusters(path string) ([]clustersession.Endpoint, error) {
	data, _, err := readFirstExisting(path)
	if err != nil {
		return nil, err
	}

	var endpoints []clustersession.Endpoint
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		host := strings.TrimSpace(fields[0])
		port := strings.TrimSpace(fields[1])
		if host == "" || port == "" || strings.EqualFold(host, "hostname") {
			continue
		}
		if _, err := strconv.Atoi(port); err != nil {
			continue
		}

		endpoint := clustersession.Endpoint{Host: host, Port: port}
		if len(fields) >= 3 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil && n > 0 {
				endpoint.RequestBacklog = true
				endpoint.BacklogCount = n
			}
		}
		endpoints = append(endpoints, endpoint)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("appconfig: scan clusters file: %w", err)
	}
	return endpoints, nil
}

// LoadBands loads the band range table from cfg.BandsFile.
func LoadBands(path string) ([]classify.BandRange, error) {
	_, resolved, err := readFirstExisting(path)
	if err != nil {
		return nil, err
	}
	return classify.LoadBandsCSV(resolved)
}

// LoadModeRanges loads the per-band mode sub-range table from cfg.ModesFile.
func LoadModeRanges(path string) (map[string][]classify.ModeRange, error) {
	_, resolved, err := readFirstExisting(path)
	if err != nil {
		return nil, err
	}
	return classify.LoadModeRangesYAML(resolved)
}

// LoadPrefixes loads the callsign prefix table from cfg.PrefixesFile.
func LoadPrefixes(path string) (*geo.PrefixTable, error) {
	_, resolved, err := readFirstExisting(path)
	if err != nil {
		return nil, err
	}
	return geo.LoadPrefixesCSV(resolved)
}
