package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cantomaster/internal/config"
	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/usage"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "practice", "score", "history", "mcp", "config"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not found: %v", name, err)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { configPath = "" })

	t.Run("missing default falls back", func(t *testing.T) {
		configPath = ""
		cfg, path, err := loadConfig()
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if path != "" || cfg.Speech.Locale != "zh-HK" {
			t.Errorf("got path %q locale %q, want defaults", path, cfg.Speech.Locale)
		}
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		configPath = filepath.Join(t.TempDir(), "nope.yaml")
		if _, _, err := loadConfig(); err == nil {
			t.Fatal("expected error for missing --config file")
		}
	})

	t.Run("explicit file", func(t *testing.T) {
		configPath = filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("server:\n  listen_addr: \":9999\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, path, err := loadConfig()
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if path != configPath || cfg.Server.ListenAddr != ":9999" {
			t.Errorf("got path %q addr %q", path, cfg.Server.ListenAddr)
		}
	})
}

func TestWriteScore(t *testing.T) {
	res := scoring.Evaluate("你好嗎？", "你好")

	var plain bytes.Buffer
	if err := writeScore(&plain, res, false, false); err != nil {
		t.Fatal(err)
	}
	out := plain.String()
	if !strings.HasPrefix(out, "67/100  Good try!\n") {
		t.Errorf("plain output = %q", out)
	}
	if !strings.Contains(out, "你好嗎") {
		t.Errorf("plain output missing normalized target: %q", out)
	}

	var js bytes.Buffer
	if err := writeScore(&js, res, true, false); err != nil {
		t.Fatal(err)
	}
	var got scoring.Result
	if err := json.Unmarshal(js.Bytes(), &got); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if got != res {
		t.Errorf("json result = %+v, want %+v", got, res)
	}
}

func TestWriteHistory(t *testing.T) {
	var empty bytes.Buffer
	if err := writeHistory(&empty, usage.Summary{}, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(empty.String(), "No attempts yet") {
		t.Errorf("empty output = %q", empty.String())
	}

	var buf bytes.Buffer
	attempts := []usage.Attempt{{SentenceID: "s1", Target: "你好", Transcript: "你好", Score: 100, At: time.Now()}}
	if err := writeHistory(&buf, usage.Summary{Attempts: 1, Average: 100, Best: 100}, attempts); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"attempts: 1", "average: 100.0", "SCORE", "你好"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnsurePreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cantomaster", "practice.toml")
	if err := ensurePreferences(path); err != nil {
		t.Fatalf("ensurePreferences: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != config.PreferencesTemplate {
		t.Error("template not written")
	}
	if _, err := config.LoadPreferences(path); err != nil {
		t.Errorf("template does not parse: %v", err)
	}

	if err := os.WriteFile(path, []byte("[practice]\nauto-play = false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensurePreferences(path); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "auto-play = false") {
		t.Error("existing preferences were overwritten")
	}
}
