package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(sample{"test", 123}, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if got != (sample{"test", 123}) {
		t.Errorf("got=%+v", got)
	}
	if !strings.Contains(buf.String(), "\n  \"name\"") {
		t.Errorf("JSON output is not indented: %s", buf.String())
	}
}

func TestOutput_YAML(t *testing.T) {
	for _, format := range []OutputFormat{FormatYAML, ""} {
		var buf bytes.Buffer
		if err := Output(sample{"test", 123}, OutputOptions{Format: format, Writer: &buf}); err != nil {
			t.Fatalf("Output(%q) error: %v", format, err)
		}
		if !strings.Contains(buf.String(), "name: test") {
			t.Errorf("Output(%q) = %q, want YAML", format, buf.String())
		}
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("x", OutputOptions{Format: "xml", Writer: &buf}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Output(sample{"file", 1}, OutputOptions{File: path}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "name: file") {
		t.Errorf("file content = %q", data)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"table", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) got=%q, %v, want=%q", tt.in, got, err, tt.want)
			}
		})
	}
}
