package script

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/expectctl/internal/expect"
)

func testOptions() expect.Options {
	return expect.Options{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

// TestRunnerCatScript drives a full script against a real cat process:
// spawn without echo, round-trip a line, end the stream with Ctrl-D,
// match EOF, and collect the exit status.
func TestRunnerCatScript(t *testing.T) {
	sc, err := Parse([]byte(`
name: cat-roundtrip
steps:
  - spawn: cat
    no_echo: true
  - send_line: ping
  - expect: [ping]
  - send_control: d
  - expect: [EOF]
  - wait: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var streamed []StepResult
	runner := NewRunner(testOptions(), nil, nil)
	runner.OnStep = func(res StepResult) { streamed = append(streamed, res) }

	results, err := runner.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if len(streamed) != 6 {
		t.Fatalf("expected 6 streamed results, got %d", len(streamed))
	}

	if results[0].Action != "spawn" || results[0].SessionID == "" {
		t.Errorf("spawn result = %+v", results[0])
	}
	if results[2].Action != "expect" || results[2].MatchIndex != 0 {
		t.Errorf("expect result = %+v", results[2])
	}
	if results[4].MatchIndex != 0 || results[4].After != "<EOF>" {
		t.Errorf("EOF result = %+v", results[4])
	}
	if results[5].Action != "wait" || results[5].ExitStatus != 0 {
		t.Errorf("wait result = %+v", results[5])
	}
}

// TestRunnerManagedSpawn runs a spawn through a Manager and checks the
// session is registered during the run and gone afterwards.
func TestRunnerManagedSpawn(t *testing.T) {
	mgr := expect.NewManager()
	defer mgr.Close()

	sc, err := Parse([]byte(`
steps:
  - spawn: sleep 10
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	runner := NewRunner(testOptions(), nil, mgr)
	runner.OnStep = func(res StepResult) {
		if res.Action == "spawn" && len(mgr.List()) != 1 {
			t.Errorf("expected 1 managed session during run, got %d", len(mgr.List()))
		}
	}

	if _, err := runner.Run(context.Background(), sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mgr.List()) != 0 {
		t.Errorf("expected 0 managed sessions after run, got %d", len(mgr.List()))
	}
}

// TestRunnerStopsOnFailure checks that a failing expect stops the script:
// the step after the failure never runs.
func TestRunnerStopsOnFailure(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - spawn: cat
    no_echo: true
  - expect: [never-coming]
    timeout: 100ms
  - send_line: unreachable
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	runner := NewRunner(testOptions(), nil, nil)
	results, err := runner.Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected run error")
	}
	if !strings.Contains(err.Error(), "step 1") {
		t.Errorf("error = %v, want step 1 reference", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Err == "" {
		t.Error("failed step has no error recorded")
	}
}

// TestRunnerTimeoutSentinelStep registers TIMEOUT in the pattern list, so
// the expiring deadline is a successful step, not a failure.
func TestRunnerTimeoutSentinelStep(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - spawn: cat
    no_echo: true
  - expect_exact: [never-coming, TIMEOUT]
    timeout: 100ms
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	runner := NewRunner(testOptions(), nil, nil)
	results, err := runner.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := results[len(results)-1]
	if last.MatchIndex != 1 || last.After != "<TIMEOUT>" {
		t.Errorf("sentinel step = %+v", last)
	}
}

func TestRunnerRequiresSpawnFirst(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - send_line: hello
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	runner := NewRunner(testOptions(), nil, nil)
	results, err := runner.Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected error without a spawn step")
	}
	if len(results) != 1 || results[0].Err == "" {
		t.Fatalf("results = %+v", results)
	}
}
