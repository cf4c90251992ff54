package appconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadClustersSkipsCommentsAndHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.csv")
	content := "hostname,port\n# comment\n\ndxc.example.net,7300\nanother.example.net,23\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write clusters file: %v", err)
	}

	endpoints, err := LoadClusters(path)
	if err != nil {
		t.Fatalf("LoadClusters: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d: %+v", len(endpoints), endpoints)
	}
	if endpoints[0].Host != "dxc.example.net" || endpoints[0].Port != "7300" {
		t.Fatalf("unexpected first endpoint: %+v", endpoints[0])
	}
}

func TestLoadClustersParsesOptionalBacklogColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.csv")
	content := "hostname,port,backlog_count\ndxc.example.net,7300,100\nanother.example.net,23\nthird.example.net,23,0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write clusters file: %v", err)
	}

	endpoints, err := LoadClusters(path)
	if err != nil {
		t.Fatalf("LoadClusters: %v", err)
	}
	if len(endpoints) != 3 {
		t.Fatalf("expected 3 endpoints, got %d: %+v", len(endpoints), endpoints)
	}
	if !endpoints[0].RequestBacklog || endpoints[0].BacklogCount != 100 {
		t.Fatalf("expected backlog enabled with count 100, got %+v", endpoints[0])
	}
	if endpoints[1].RequestBacklog {
		t.Fatalf("expected backlog disabled for two-column row, got %+v", endpoints[1])
	}
	if endpoints[2].RequestBacklog {
		t.Fatalf("expected backlog disabled for zero count, got %+v", endpoints[2])
	}
}

func TestLoadClustersMissingFileErrors(t *testing.T) {
	if _, err := LoadClusters(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSearchPathsTriesWorkingDirThenParent(t *testing.T) {
	paths := searchPaths("data/clusters.csv")
	if len(paths) != 2 || paths[0] != "data/clusters.csv" || paths[1] != filepath.Join("..", "data/clusters.csv") {
		t.Fatalf("unexpected search paths: %v", paths)
	}
}
