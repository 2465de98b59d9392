package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	es "github.com/terraskye/formations"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FORMATIONS_LOG_LEVEL", "error")
	var out bytes.Buffer
	err := execute(ctx, args, &out)
	return out.String(), err
}

func TestRace(t *testing.T) {
	tests := []struct {
		mode           string
		wantInstructor string
		wantVersion    string
	}{
		// B persists first; A's event is newer and wins.
		{mode: "naive", wantInstructor: `instructor="Alice"`, wantVersion: "version=3"},
		// A is rejected because B already advanced the stream.
		{mode: "occ", wantInstructor: `instructor="Bob"`, wantVersion: "version=2"},
		// A loads after B persisted and applies on top of it.
		{mode: "update", wantInstructor: `instructor="Alice"`, wantVersion: "version=3"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			out, err := runCLI(t, "race", "--store", "memory", "--mode", tt.mode,
				"--id", "f-race", "--delay-a", "60ms", "--delay-b", "5ms")
			if err != nil {
				t.Fatalf("race error = %v", err)
			}
			if !strings.Contains(out, tt.wantInstructor) {
				t.Errorf("output %q does not contain %s", out, tt.wantInstructor)
			}
			if !strings.Contains(out, tt.wantVersion) {
				t.Errorf("output %q does not contain %s", out, tt.wantVersion)
			}
		})
	}
}

func TestRace_ExplicitZeroDelays(t *testing.T) {
	t.Setenv("FORMATIONS_RACE_DELAY", "1m")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := runCLIContext(t, ctx, "race", "--store", "memory",
		"--delay-a", "0s", "--delay-b", "0s")
	if err != nil {
		t.Fatalf("race error = %v", err)
	}
	if !strings.Contains(out, "version=3") {
		t.Errorf("output %q does not contain version=3", out)
	}
}

func TestRace_UnknownMode(t *testing.T) {
	if _, err := runCLI(t, "race", "--store", "memory", "--mode", "chaos"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestCommands_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formations.db")
	store := []string{"--store", "sqlite", "--path", path}
	cli := func(args ...string) (string, error) {
		return runCLI(t, append(args, store...)...)
	}

	if _, err := cli("create", "f-1", "Go basics", "8"); err != nil {
		t.Fatalf("create error = %v", err)
	}
	if _, err := cli("schedule", "f-1", "2021-05-01", "Alice"); err != nil {
		t.Fatalf("schedule error = %v", err)
	}

	out, err := cli("show", "f-1")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	for _, want := range []string{`name="Go basics"`, "hours=8", `date="2021-05-01"`, `instructor="Alice"`} {
		if !strings.Contains(out, want) {
			t.Errorf("show output %q does not contain %s", out, want)
		}
	}

	out, err = cli("show", "f-1", "--raw")
	if err != nil {
		t.Fatalf("show --raw error = %v", err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("show --raw printed invalid JSON %q: %v", out, err)
	}
	if state["durationHours"] != float64(8) || state["instructorName"] != "Alice" {
		t.Errorf("unexpected projection: %v", state)
	}

	out, err = cli("log", "--id", "f-1")
	if err != nil {
		t.Fatalf("log error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), out)
	}
	var record es.Record
	if err := json.Unmarshal([]byte(lines[1]), &record); err != nil {
		t.Fatal(err)
	}
	if record.Name != "FormationScheduled" || record.AggregateID != "f-1" {
		t.Errorf("unexpected record: %+v", record)
	}

	_, err = cli("create", "f-1", "Duplicate", "1")
	var conflict *es.StreamRevisionConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("duplicate create: expected StreamRevisionConflictError, got %v", err)
	}

	if _, err := cli("show", "missing"); !errors.Is(err, es.ErrAggregateNotFound) {
		t.Errorf("show missing: expected ErrAggregateNotFound, got %v", err)
	}
}

func TestCommands_FileStore(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCLI(t, "create", "f-1", "Go", "4", "--store", "file", "--path", dir); err != nil {
		t.Fatalf("create error = %v", err)
	}
	out, err := runCLI(t, "show", "f-1", "--store", "file", "--path", dir)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "hours=4") {
		t.Errorf("show output %q does not contain hours=4", out)
	}
}

func TestFlagsOverrideInvalidEnvironment(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		args  []string
	}{
		{name: "store", key: "FORMATIONS_STORE", value: "postgres", args: []string{"--store", "memory"}},
		{name: "store with log level", key: "FORMATIONS_STORE", value: "postgres", args: []string{"--store", "memory", "--log-level", "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			args := append([]string{"race", "--delay-a", "0s", "--delay-b", "0s"}, tt.args...)
			if _, err := runCLI(t, args...); err != nil {
				t.Errorf("race error = %v", err)
			}
		})
	}

	t.Run("log level flag over invalid env", func(t *testing.T) {
		var out bytes.Buffer
		t.Setenv("FORMATIONS_LOG_LEVEL", "loud")

		err := execute(context.Background(), []string{"log", "--store", "memory", "--log-level", "error"}, &out)
		if err != nil {
			t.Errorf("log error = %v", err)
		}
	})

	t.Run("invalid env without flag", func(t *testing.T) {
		t.Setenv("FORMATIONS_STORE", "postgres")

		if _, err := runCLI(t, "log"); err == nil {
			t.Error("expected an error for an unknown store")
		}
	})
}

func TestCommands_InvalidStore(t *testing.T) {
	if _, err := runCLI(t, "log", "--store", "postgres"); err == nil {
		t.Error("expected an error for an unknown store")
	}
}
