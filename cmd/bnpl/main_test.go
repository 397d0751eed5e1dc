package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"bnpl/internal/services"
	"bnpl/internal/testsupport"
)

func TestExecuteExitCodes(t *testing.T) {
	ok := &cobra.Command{Use: "ok", RunE: func(*cobra.Command, []string) error { return nil }}
	failing := &cobra.Command{Use: "fail", SilenceErrors: true, SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error { return errors.New("boom") }}

	var stderr bytes.Buffer
	if code := execute(context.Background(), ok, &stderr); code != exitOK {
		t.Fatalf("expected %d, got %d", exitOK, code)
	}
	if code := execute(context.Background(), failing, &stderr); code != exitFailure {
		t.Fatalf("expected %d, got %d", exitFailure, code)
	}
	requireContains(t, stderr.String(), "boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stderr.Reset()
	if code := execute(ctx, failing, &stderr); code != exitInterrupted {
		t.Fatalf("expected %d, got %d", exitInterrupted, code)
	}
	requireContains(t, stderr.String(), "interrupted")
}

func TestPluginsCommand(t *testing.T) {
	out, _, err := runCLI(t, nil, nil, "plugins")
	if err != nil {
		t.Fatalf("plugins: %v", err)
	}
	for _, key := range []string{"file.directory", "fpcalc.uid", "core.pipeline", "export.manifest"} {
		requireContains(t, out, key)
	}

	out, _, err = runCLI(t, nil, nil, "plugins", "--json", "--type", "exporter")
	if err != nil {
		t.Fatalf("plugins --json: %v", err)
	}
	var descs []map[string]any
	if err := json.Unmarshal([]byte(out), &descs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(descs) != 1 || descs[0]["key"] != "export.manifest" {
		t.Fatalf("expected only the manifest exporter, got %v", descs)
	}

	out, _, err = runCLI(t, nil, nil, "plugins", "file.directory")
	if err != nil {
		t.Fatalf("plugins file.directory: %v", err)
	}
	requireContains(t, out, "formats")
	requireContains(t, out, "list<string>")

	if _, _, err := runCLI(t, nil, nil, "plugins", "nope.missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunCommandStreamsNDJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	music := filepath.Join(env.baseDir, "music")
	for _, name := range []string{"a.wav", "b.mp3", "c.txt"} {
		testsupport.WriteFile(t, filepath.Join(music, name), 32)
	}

	out, _, err := runCLI(t, env, nil, "run", "file.directory", "--path", music, "--formats", "[wav, mp3]")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	listed := decodeNDJSON(t, out)
	if len(listed) != 2 {
		t.Fatalf("expected 2 sounds, got %d:\n%s", len(listed), out)
	}

	out, _, err = runCLI(t, env, strings.NewReader(out), "run", "core.importer")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	imported := decodeNDJSON(t, out)
	if len(imported) != 2 {
		t.Fatalf("expected 2 imported sounds, got %d:\n%s", len(imported), out)
	}
	uid, _ := imported[0]["uid"].(string)
	if uid == "" {
		t.Fatalf("expected imported sound to carry a uid: %v", imported[0])
	}

	out, _, err = runCLI(t, env, nil, "sound", "get", uid)
	if err != nil {
		t.Fatalf("sound get: %v", err)
	}
	requireContains(t, out, uid)

	out, _, err = runCLI(t, env, nil, "sound", "search", "--json", "--match", "format=wav")
	if err != nil {
		t.Fatalf("sound search: %v", err)
	}
	if found := decodeNDJSON(t, out); len(found) != 1 {
		t.Fatalf("expected 1 wav, got %v", found)
	}

	out, _, err = runCLI(t, env, nil, "sound", "check", "--json", uid)
	if err != nil {
		t.Fatalf("sound check: %v", err)
	}
	checks := decodeNDJSON(t, out)
	if len(checks) != 1 || checks[0]["blob"] != true || checks[0]["record"] != true {
		t.Fatalf("expected both stores to hold the sound, got %v", checks)
	}

	dest := filepath.Join(env.baseDir, "fetched")
	if _, _, err := runCLI(t, env, nil, "sound", "fetch", uid, "-o", dest); err != nil {
		t.Fatalf("sound fetch: %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() != 32 {
		t.Fatalf("expected fetched copy of 32 bytes, got %v, %v", info, err)
	}

	out, _, err = runCLI(t, env, nil, "sound", "rm", uid)
	if err != nil {
		t.Fatalf("sound rm: %v", err)
	}
	requireContains(t, out, "Removed "+uid)
	if _, _, err := runCLI(t, env, nil, "sound", "get", uid); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected removed sound to be missing, got %v", err)
	}
}

func TestRunCommandHelpAndFailures(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, nil, "run", "file.directory", "--help")
	if err != nil {
		t.Fatalf("plugin help: %v", err)
	}
	var desc map[string]any
	if err := json.Unmarshal([]byte(out), &desc); err != nil {
		t.Fatalf("decode help: %v", err)
	}
	if desc["key"] != "file.directory" || desc["type"] != "extractor" {
		t.Fatalf("unexpected descriptor: %v", desc)
	}

	if _, _, err := runCLI(t, env, nil, "run", "file.directory"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing path to fail validation, got %v", err)
	}
	if _, _, err := runCLI(t, env, nil, "run", "nope.missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected unknown plugin to fail, got %v", err)
	}
	if _, _, err := runCLI(t, env, nil, "run", "file.directory", "stray"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected stray argument to fail, got %v", err)
	}

	_, _, err = runCLI(t, env, strings.NewReader("42\n"), "run", "core.importer")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected bad input line to surface as an item failure, got %v", err)
	}
}

func TestPreflightCommand(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithToolScript("fpcalc", "exit 0"),
		testsupport.WithToolScript("ffprobe", "exit 0"),
	)
	out, _, err := runCLI(t, env, nil, "preflight")
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "Temp directory")
	requireContains(t, out, "fpcalc")

	missing := setupCLITestEnv(t)
	missing.cfg.Tools.Fpcalc = "clearly-not-present-fpcalc"
	writeTestConfig(t, missing.configPath, missing.cfg)
	out, _, err = runCLI(t, missing, nil, "preflight", "--json")
	if err == nil {
		t.Fatal("expected preflight to fail without fpcalc")
	}
	var results []map[string]any
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results to be printed before failing")
	}
}

func TestConfigCommands(t *testing.T) {
	target := filepath.Join(t.TempDir(), "conf", "bnpl.toml")
	out, _, err := runCLI(t, nil, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)
	if _, _, err := runCLI(t, nil, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, nil, nil, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	env := setupCLITestEnv(t, testsupport.WithAPIToken("s3cret"))
	out, _, err = runCLI(t, env, nil, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "s3cret") {
		t.Fatalf("token leaked in config show output:\n%s", out)
	}
}
