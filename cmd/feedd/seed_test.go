package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadItems(t *testing.T) {
	input := `
# clips for the kitchen feed
file:///clips/a.mp4	Breakfast
file:///clips/b.mp4

  https://cdn.example.com/c.m3u8	 Live  
`
	items, err := readItems(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readItems() failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("readItems() returned %d items, want 3", len(items))
	}
	if items[0].URI != "file:///clips/a.mp4" || items[0].Title != "Breakfast" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Title != "" {
		t.Errorf("items[1].Title = %q, want empty", items[1].Title)
	}
	if items[2].URI != "https://cdn.example.com/c.m3u8" || items[2].Title != "Live" {
		t.Errorf("items[2] = %+v", items[2])
	}
}

func TestSeedCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "feedd.yaml")
	cfg := fmt.Sprintf("instance_id: test\ncatalog:\n  db_path: %s\n", filepath.Join(dir, "catalog.db"))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"seed", "--config", cfgPath, "file:///a.mp4", "file:///b.mp4"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if got := out.String(); !strings.Contains(got, "added 2 items") || !strings.Contains(got, "(2 total)") {
		t.Errorf("output = %q", got)
	}

	cmd = newRootCommand()
	cmd.SetArgs([]string{"seed", "--config", cfgPath})
	if err := cmd.Execute(); err == nil {
		t.Error("seed without URIs succeeded")
	}
}
