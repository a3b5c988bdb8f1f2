package common

import (
	"bytes"
	"dfs/internal/types"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in, out types.Path
	}{
		{"", "/"},
		{"/", "/"},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{"docs/a.txt", "/docs/a.txt"},
		{"/test//double//slash.txt", "/test//double//slash.txt"},
		{"/test/./dot/file.txt", "/test/./dot/file.txt"},
	}
	for _, c := range cases {
		if got := NormalizePath(c.in); got != c.out {
			t.Errorf("NormalizePath(%q) = %q, want %q", c.in, got, c.out)
		}
	}
}

func TestPathParts(t *testing.T) {
	if p := ParentDir("/a/b/c.txt"); p != "/a/b" {
		t.Fatalf("parent %v", p)
	}
	if p := ParentDir("/c.txt"); p != "/" {
		t.Fatalf("parent %v", p)
	}
	if n := GetFileNameWithExt("/a/b/c.txt"); n != "c.txt" {
		t.Fatalf("name %v", n)
	}
	if IsAbsolute("a/b") || !IsAbsolute("/a") {
		t.Fatal("IsAbsolute")
	}
}

func TestUnderDir(t *testing.T) {
	if !UnderDir("/docs/a.txt", "/docs") {
		t.Fatal("child not under dir")
	}
	if UnderDir("/docs2/a.txt", "/docs") {
		t.Fatal("sibling with shared prefix matched")
	}
	if !HasPrefix("/docs2/a.txt", "/docs") {
		t.Fatal("raw prefix should match")
	}
	if !UnderDir("/x", "/") {
		t.Fatal("root should contain everything")
	}
}

func TestIds(t *testing.T) {
	a, b := NewChunkId(), NewChunkId()
	if a == b {
		t.Fatal("duplicate chunk id")
	}
	if !strings.HasPrefix(a, "chunk_") || !strings.HasPrefix(NewFileId(), "file_") {
		t.Fatal("bad prefix")
	}
}

func TestMd5Sumer(t *testing.T) {
	var buf bytes.Buffer
	s := NewMd5Sumer(&buf)
	s.Write([]byte("hello "))
	s.Write([]byte("world"))
	if buf.String() != "hello world" {
		t.Fatalf("passthrough %q", buf.String())
	}
	if s.GetSum() != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Fatalf("md5 %v", s.GetSum())
	}
}
