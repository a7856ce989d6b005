package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewPaths(t *testing.T) {
	paths, err := NewPaths("lesynth")
	if err != nil {
		t.Fatalf("NewPaths error: %v", err)
	}
	if paths.AppName != "lesynth" {
		t.Errorf("AppName = %q, want %q", paths.AppName, "lesynth")
	}
	if paths.HomeDir == "" {
		t.Error("HomeDir should not be empty")
	}
}

func TestPaths_Layout(t *testing.T) {
	home := t.TempDir()
	paths := &Paths{AppName: "lesynth", HomeDir: home}
	app := filepath.Join(home, DefaultBaseDir, "lesynth")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"base", paths.BaseDir(), filepath.Join(home, DefaultBaseDir)},
		{"app", paths.AppDir(), app},
		{"config", paths.ConfigFile(), filepath.Join(app, DefaultConfigFile)},
		{"data", paths.DataDir(), filepath.Join(app, "data")},
		{"presets", paths.PresetDir(), filepath.Join(app, "data", "presets")},
		{"logs", paths.LogDir(), filepath.Join(app, "logs")},
		{"log file", paths.LogPath("run.log"), filepath.Join(app, "logs", "run.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got=%q, want=%q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	paths := &Paths{AppName: "lesynth", HomeDir: t.TempDir()}
	if err := EnsureDir(paths.PresetDir()); err != nil {
		t.Fatalf("EnsureDir error: %v", err)
	}
	info, err := os.Stat(paths.PresetDir())
	if err != nil {
		t.Fatalf("PresetDir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("PresetDir should be a directory")
	}
	// Existing directories are fine.
	if err := EnsureDir(paths.PresetDir()); err != nil {
		t.Errorf("EnsureDir on existing dir: %v", err)
	}
}
