package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/vpnprobe/internal/database"
	"github.com/nao1215/vpnprobe/internal/model"
)

func aliveResult(name string, index int, ms int) model.TestResult {
	p := model.ServerProfile{
		Address: strings.ToLower(name) + ".example", Port: 443, UserID: "u",
		Network: model.NetworkTCP, DisplayName: name, Fingerprint: "fp-" + strings.ToLower(name),
	}
	return model.NewAliveResult(p, index, time.Duration(ms)*time.Millisecond, "HTTP 204")
}

// seedRuns stores two runs: Tokyo and Oslo alive, then Tokyo and Paris alive.
func seedRuns(t *testing.T, env testEnv) {
	t.Helper()

	store, err := database.Open(env.dataDir(), database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	first := model.NewTestReport("run-1", time.Now().Add(-time.Hour), 3, []model.TestResult{
		aliveResult("Tokyo", 0, 50), aliveResult("Oslo", 1, 90),
	})
	second := model.NewTestReport("run-2", time.Now().Add(-time.Minute), 3, []model.TestResult{
		aliveResult("Tokyo", 0, 60), aliveResult("Paris", 1, 40),
	})
	for _, r := range []*model.TestReport{first, second} {
		if _, err := store.SaveTestRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
}

// TestHistoryCmd tests the history views.
func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("no runs", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		out, _, err := env.run(t, "history")
		if err != nil || !strings.Contains(out, "No test runs yet") {
			t.Errorf("unexpected %q, %v", out, err)
		}
	})

	t.Run("diff of latest two runs", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		seedRuns(t, env)

		out, _, err := env.run(t, "history")
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"Latest run #2", "2 of 2 alive", "Fastest: Paris", "+ Paris", "- Oslo", "1 still alive"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json diff", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		seedRuns(t, env)

		out, _, err := env.run(t, "history", "--json")
		if err != nil {
			t.Fatal(err)
		}
		var got historyJSON
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if got.Latest.RunID != "run-2" || got.Previous == nil || got.Previous.RunID != "run-1" {
			t.Errorf("unexpected records %+v", got)
		}
		if len(got.Diff.NewlyAlive) != 1 || len(got.Diff.Lost) != 1 || got.Diff.StillAlive != 1 {
			t.Errorf("unexpected diff %+v", got.Diff)
		}
	})

	t.Run("list and show by id", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		seedRuns(t, env)

		out, _, err := env.run(t, "history", "--list")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "ID") || strings.Count(out, "\n") != 3 {
			t.Errorf("unexpected list:\n%s", out)
		}

		out, _, err = env.run(t, "history", "--id", "1")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "run-1") || !strings.Contains(out, "Oslo") {
			t.Errorf("unexpected report:\n%s", out)
		}

		if _, _, err := env.run(t, "history", "--id", "99"); err == nil {
			t.Error("expected an error for a missing run")
		}
	})
}
