package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bouncearena.dev/internal/arena/soak"
	persistlog "bouncearena.dev/internal/persistence/log"
)

const deadEndLibrary = `{
  "profile_resolution": 4,
  "chunks": [
    {
      "name": "dead_end",
      "height": 300,
      "weight": 1,
      "pacing": "Open",
      "top_profile": [false, false, false, false],
      "bottom_profile": [true, true, true, true]
    }
  ]
}`

const openLibrary = `{
  "profile_resolution": 4,
  "chunks": [
    {"name": "o", "height": 300, "weight": 1, "pacing": "Open", "top_profile": [false, false, false, false], "bottom_profile": [false, false, false, false]},
    {"name": "t", "height": 300, "weight": 1, "pacing": "Transition", "top_profile": [false, false, false, false], "bottom_profile": [false, false, false, false]},
    {"name": "d", "height": 300, "weight": 1, "pacing": "Dense", "top_profile": [false, false, false, false], "bottom_profile": [false, false, false, false]}
  ]
}`

func writeConfigs(t *testing.T, library, soakJSON, policyYAML string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{"chunks.json": library, "soak.json": soakJSON, "policy.yaml": policyYAML}
	for name, body := range files {
		if body == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestRun_StoppedEarlyFlushesStepLog(t *testing.T) {
	configs := writeConfigs(t, deadEndLibrary, `{"seed": 3, "steps": 10}`, "")
	out := t.TempDir()
	stepDir := filepath.Join(out, "steps")

	code := run([]string{
		"-configs", configs,
		"-out", filepath.Join(out, "summary.json"),
		"-steplog", stepDir,
	}, io.Discard, io.Discard)
	if code != 1 {
		t.Fatalf("exit=%d, want 1", code)
	}

	logs, err := filepath.Glob(filepath.Join(stepDir, "steps-*.jsonl.zst"))
	if err != nil || len(logs) != 1 {
		t.Fatalf("step logs=%v err=%v", logs, err)
	}
	entries, err := persistlog.ReadSteps(logs[0])
	if err != nil {
		t.Fatalf("ReadSteps: %v", err)
	}
	if len(entries) != 1 || entries[0].Chunk != "dead_end" || entries[0].Seed != 3 {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestRun_ExplicitFlagsOverrideConfig(t *testing.T) {
	soakJSON := `{"seed": 99, "steps": 5, "policy": {"concave_trap_max_distance": 10}}`
	configs := writeConfigs(t, openLibrary, soakJSON, "")
	policyPath := filepath.Join(t.TempDir(), "strict.yaml")
	if err := os.WriteFile(policyPath, []byte("concave_trap_max_distance: 200\n"), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	summaryPath := filepath.Join(t.TempDir(), "summary.json")

	var stdout bytes.Buffer
	code := run([]string{
		"-configs", configs,
		"-seed", "0",
		"-steps", "3",
		"-policy", policyPath,
		"-out", summaryPath,
	}, &stdout, io.Discard)
	if code != 0 {
		t.Fatalf("exit=%d, want 0; log:\n%s", code, stdout.String())
	}
	sum, err := soak.ReadSummary(summaryPath)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if sum.Seed != 0 || sum.StepsCompleted != 3 {
		t.Fatalf("seed=%d completed=%d, want 0 and 3", sum.Seed, sum.StepsCompleted)
	}
	if !strings.Contains(stdout.String(), "policy from "+policyPath) {
		t.Fatalf("policy source not logged:\n%s", stdout.String())
	}
}

func TestRun_ConfigPolicyBlockWithoutFlag(t *testing.T) {
	configs := writeConfigs(t, openLibrary, `{"seed": 4, "steps": 2, "policy": {"concave_trap_max_distance": 10}}`, "")
	var stdout bytes.Buffer
	code := run([]string{"-configs", configs, "-out", filepath.Join(t.TempDir(), "s.json")}, &stdout, io.Discard)
	if code != 0 {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(stdout.String(), "(policy block)") {
		t.Fatalf("policy source not logged:\n%s", stdout.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	if code := run([]string{"-steps", "-1"}, io.Discard, io.Discard); code != 2 {
		t.Fatalf("negative steps exit=%d, want 2", code)
	}
	if code := run([]string{"-nope"}, io.Discard, io.Discard); code != 2 {
		t.Fatalf("unknown flag exit=%d, want 2", code)
	}
}
