package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		method  string
		params  string
		wantErr bool
	}{
		{"ping", "ping", "", false},
		{"  memory_read {\"address\":\"0x600000\",\"valueType\":\"u8\"}  ", "memory_read", `{"address":"0x600000","valueType":"u8"}`, false},
		{"memory_read {address:1}", "", "", true},
		{"   ", "", "", true},
	}
	for _, tt := range tests {
		method, params, err := parseLine(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLine(%q) error = %v", tt.line, err)
			continue
		}
		if method != tt.method || string(params) != tt.params {
			t.Errorf("parseLine(%q) = %q, %q", tt.line, method, params)
		}
	}
}

func TestPrintResultTable(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, []map[string]any{
		{"name": "sample", "base": "0x400000"},
		{"name": "libc.so.6", "base": "0x7f0000000000", "path": "/usr/lib/libc.so.6"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "base") || !strings.Contains(lines[0], "name") || !strings.HasSuffix(lines[0], "path") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[2], "-") {
		t.Errorf("missing cell not rendered as '-': %q", lines[2])
	}
	if !strings.Contains(lines[3], "/usr/lib/libc.so.6") {
		t.Errorf("row = %q", lines[3])
	}
}

func TestPrintResultObject(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, map[string]any{"pong": true})
	if got := buf.String(); !strings.Contains(got, `"pong": true`) {
		t.Errorf("got %q", got)
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	newConsoleSink(&buf).Emit("memory_watch_cleared", map[string]int{"count": 3})
	if got := buf.String(); got != "[memory_watch_cleared] {\"count\":3}\n" {
		t.Errorf("got %q", got)
	}
}
