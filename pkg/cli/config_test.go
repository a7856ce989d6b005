package cli

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfigWithPath("lesynth", filepath.Join(t.TempDir(), "lesynth", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	return cfg
}

func TestContext_Extra(t *testing.T) {
	var nilCtx *Context
	if got := nilCtx.GetExtra("key"); got != "" {
		t.Errorf("GetExtra on nil context = %q, want empty string", got)
	}

	ctx := &Context{Name: "test"}
	if got := ctx.GetExtra("key"); got != "" {
		t.Errorf("GetExtra on nil map = %q, want empty string", got)
	}
	ctx.SetExtra("role", "headset")
	if got := ctx.GetExtra("role"); got != "headset" {
		t.Errorf("GetExtra(role) = %q, want %q", got, "headset")
	}
	ctx.SetExtra("role", "")
	if _, ok := ctx.Extra["role"]; ok {
		t.Error("SetExtra with empty value should remove the key")
	}
}

func TestContext_TypedExtra(t *testing.T) {
	ctx := &Context{Extra: map[string]string{
		"voices":        "3",
		"bad_int":       "three",
		"test_pattern":  "true",
		"frame":         "7500us",
		"rtp_local":     "127.0.0.1:5004, 127.0.0.1:5006",
		"empty_on_read": "",
	}}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"int", ctx.ExtraInt("voices", 5), 3},
		{"int fallback", ctx.ExtraInt("bad_int", 5), 5},
		{"int missing", ctx.ExtraInt("missing", 7), 7},
		{"bool", ctx.ExtraBool("test_pattern", false), true},
		{"bool missing", ctx.ExtraBool("missing", true), true},
		{"duration", ctx.ExtraDuration("frame", time.Second), 7500 * time.Microsecond},
		{"duration fallback", ctx.ExtraDuration("voices", time.Second), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got=%v, want=%v", tt.got, tt.want)
			}
		})
	}

	want := []string{"127.0.0.1:5004", "127.0.0.1:5006"}
	if got := ctx.ExtraList("rtp_local"); !slices.Equal(got, want) {
		t.Errorf("ExtraList got=%v, want=%v", got, want)
	}
	if got := ctx.ExtraList("empty_on_read"); got != nil {
		t.Errorf("ExtraList of empty value got=%v, want nil", got)
	}
}

func TestLoadConfigWithPath_NewConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "lesynth", "config.yaml")

	cfg, err := LoadConfigWithPath("lesynth", configPath)
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	if cfg.AppName != "lesynth" {
		t.Errorf("AppName = %q, want %q", cfg.AppName, "lesynth")
	}
	if cfg.Contexts == nil {
		t.Error("Contexts should be initialized")
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config file should be created: %v", err)
	}
	if cfg.Path() != configPath || cfg.Dir() != filepath.Dir(configPath) {
		t.Errorf("Path/Dir = %q/%q", cfg.Path(), cfg.Dir())
	}
}

func TestLoadConfigWithPath_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("contexts: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigWithPath("lesynth", configPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_Contexts(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.AddContext("stereo", &Context{Extra: map[string]string{"role": "gateway"}}); err != nil {
		t.Fatalf("AddContext error: %v", err)
	}
	cfg.AddContext("bis", &Context{})
	if got := cfg.Contexts["stereo"].Name; got != "stereo" {
		t.Errorf("Context.Name = %q, want %q", got, "stereo")
	}
	if got := cfg.ListContexts(); !slices.Equal(got, []string{"bis", "stereo"}) {
		t.Errorf("ListContexts = %v", got)
	}

	if _, err := cfg.GetCurrentContext(); err == nil {
		t.Error("GetCurrentContext without current context should fail")
	}
	if err := cfg.UseContext("missing"); err == nil {
		t.Error("UseContext(missing) should fail")
	}
	if err := cfg.UseContext("stereo"); err != nil {
		t.Fatalf("UseContext error: %v", err)
	}

	ctx, err := cfg.ResolveContext("")
	if err != nil || ctx.Name != "stereo" {
		t.Errorf("ResolveContext(\"\") = %v, %v", ctx, err)
	}
	ctx, err = cfg.ResolveContext("bis")
	if err != nil || ctx.Name != "bis" {
		t.Errorf("ResolveContext(bis) = %v, %v", ctx, err)
	}

	if err := cfg.DeleteContext("missing"); err == nil {
		t.Error("DeleteContext(missing) should fail")
	}
	if err := cfg.DeleteContext("stereo"); err != nil {
		t.Fatalf("DeleteContext error: %v", err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext should be cleared, got %q", cfg.CurrentContext)
	}
}

func TestConfig_Persistence(t *testing.T) {
	cfg1 := newTestConfig(t)
	ctx := &Context{Description: "two earbuds"}
	ctx.SetExtra("codec", "adpcm")
	cfg1.AddContext("desk", ctx)
	cfg1.UseContext("desk")

	cfg2, err := LoadConfigWithPath("lesynth", cfg1.Path())
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	if cfg2.CurrentContext != "desk" {
		t.Errorf("CurrentContext = %q, want %q", cfg2.CurrentContext, "desk")
	}
	got, err := cfg2.GetContext("desk")
	if err != nil {
		t.Fatalf("GetContext error: %v", err)
	}
	if got.Description != "two earbuds" || got.GetExtra("codec") != "adpcm" {
		t.Errorf("context = %+v", got)
	}
}
