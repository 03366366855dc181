package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func runConfigCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")

	out, err := runConfigCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	if !strings.Contains(string(content), "[reasoner]") {
		t.Fatalf("sample config missing reasoner section:\n%s", content)
	}

	// init again without --overwrite refuses to clobber
	if _, err := runConfigCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, err := runConfigCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateWithFile(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	t.Setenv("CRUCIBLE_REASONER_API_KEY", "test-key")

	content := "[paths]\n" +
		"upload_dir = " + strconv.Quote(filepath.Join(tmp, "uploads")) + "\n" +
		"derived_dir = " + strconv.Quote(filepath.Join(tmp, "fixed")) + "\n" +
		"log_dir = " + strconv.Quote(filepath.Join(tmp, "logs")) + "\n" +
		"index_db = " + strconv.Quote(filepath.Join(tmp, "index.db")) + "\n"
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runConfigCLI(t, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, target)

	if _, err := os.Stat(filepath.Join(tmp, "uploads")); err != nil {
		t.Fatalf("expected upload dir to be created: %v", err)
	}
}
