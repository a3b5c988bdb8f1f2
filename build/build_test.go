package main

import (
	"bytes"
	"dfs/config"
	"strings"
	"testing"
)

func TestGenRunScript(t *testing.T) {
	cfg, err := config.LoadFile("../config/config.xml")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := GenRunScript(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "-r s") != len(cfg.Cluster.Storage.Nodes) {
		t.Fatalf("script %q", out)
	}
	if !strings.Contains(out, "DFS_UUID=2") || !strings.Contains(out, "mkdir -p data/node3") {
		t.Fatalf("script %q", out)
	}
}
