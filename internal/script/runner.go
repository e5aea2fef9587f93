package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/user/expectctl/internal/config"
	"github.com/user/expectctl/internal/expect"
	"github.com/user/expectctl/internal/record"
	"github.com/user/expectctl/internal/transport"
)

// StepResult reports the outcome of one executed step.
type StepResult struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	// MatchIndex is the pattern-set index returned by an expect step,
	// -1 for other actions.
	MatchIndex int    `json:"match_index"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
	ExitStatus int    `json:"exit_status,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Err        string `json:"error,omitempty"`
}

// Runner executes scripts against a single active session, replacing it
// whenever a spawn step runs.
type Runner struct {
	opts  expect.Options
	store *record.Store
	mgr   *expect.Manager

	// OnStep, when set, is called with each result as it is produced.
	OnStep func(StepResult)

	sess   *expect.Session
	sessID string
}

// NewRunner builds a runner. The transcript store and session manager are
// both optional.
func NewRunner(opts expect.Options, store *record.Store, mgr *expect.Manager) *Runner {
	return &Runner{opts: opts, store: store, mgr: mgr}
}

// Run executes every step in order. Execution stops at the first failed
// step; the results produced so far are returned alongside the error. The
// context is checked between steps; individual expect calls are bounded
// by their own deadlines.
func (r *Runner) Run(ctx context.Context, sc *Script) ([]StepResult, error) {
	results := make([]StepResult, 0, len(sc.Steps))
	defer r.teardown()

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := r.runStep(i, step)
		results = append(results, res)
		if r.OnStep != nil {
			r.OnStep(res)
		}
		if res.Err != "" {
			return results, fmt.Errorf("step %d (%s): %s", i, res.Action, res.Err)
		}
	}
	return results, nil
}

func (r *Runner) runStep(i int, step Step) StepResult {
	res := StepResult{Step: i, MatchIndex: -1, SessionID: r.sessID}

	fail := func(err error) StepResult {
		res.Err = err.Error()
		return res
	}

	switch {
	case step.Spawn != "":
		res.Action = "spawn"
		argv, err := shellquote.Split(step.Spawn)
		if err != nil {
			return fail(fmt.Errorf("split command: %w", err))
		}
		if err := r.spawn(argv, step.NoEcho); err != nil {
			return fail(err)
		}
		res.SessionID = r.sessID
		return res

	case step.Send != "":
		res.Action = "send"
		if err := r.needSession(); err != nil {
			return fail(err)
		}
		if _, err := r.sess.Send(step.Send); err != nil {
			return fail(err)
		}
		return res

	case step.SendLine != nil:
		res.Action = "send_line"
		if err := r.needSession(); err != nil {
			return fail(err)
		}
		if _, err := r.sess.SendLine(*step.SendLine); err != nil {
			return fail(err)
		}
		return res

	case step.SendControl != "":
		res.Action = "send_control"
		if err := r.needSession(); err != nil {
			return fail(err)
		}
		if _, err := r.sess.SendControl(step.SendControl[0]); err != nil {
			return fail(err)
		}
		return res

	case len(step.Expect) > 0:
		res.Action = "expect"
		return r.expectStep(res, step.Expect, false, step.Timeout)

	case len(step.ExpectExact) > 0:
		res.Action = "expect_exact"
		return r.expectStep(res, step.ExpectExact, true, step.Timeout)

	case step.Wait:
		res.Action = "wait"
		if err := r.needSession(); err != nil {
			return fail(err)
		}
		status, err := r.sess.Wait()
		if err != nil {
			return fail(err)
		}
		res.ExitStatus = status
		return res

	case step.Close:
		res.Action = "close"
		if err := r.needSession(); err != nil {
			return fail(err)
		}
		r.teardown()
		res.SessionID = ""
		return res
	}

	res.Err = "empty step"
	return res
}

func (r *Runner) expectStep(res StepResult, names []string, exact bool, timeout config.Duration) StepResult {
	if err := r.needSession(); err != nil {
		res.Err = err.Error()
		return res
	}
	items := make([]any, 0, len(names))
	for _, name := range names {
		switch name {
		case NameEOF:
			items = append(items, expect.EOF)
		case NameTimeout:
			items = append(items, expect.Timeout)
		default:
			items = append(items, name)
		}
	}

	d := expect.DefaultTimeout
	if timeout != 0 {
		d = time.Duration(timeout)
	}

	var idx int
	var err error
	if exact {
		idx, err = r.sess.ExpectExact(d, items...)
	} else {
		idx, err = r.sess.Expect(d, items...)
	}
	res.Before = r.sess.Before()
	res.After = r.sess.After()
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.MatchIndex = idx
	return res
}

func (r *Runner) spawn(argv []string, noEcho bool) error {
	r.teardown()

	var id string
	var sess *expect.Session
	var err error
	cfg := transport.SpawnConfig{NoEcho: noEcho}
	if r.mgr != nil {
		id, sess, err = r.mgr.Spawn(argv, cfg, r.opts)
	} else {
		id = "local"
		sess, err = expect.Spawn(argv, cfg, r.opts)
	}
	if err != nil {
		return err
	}
	if r.store != nil {
		sess.SetObserver(record.NewSessionObserver(r.store, id))
	}
	r.sess, r.sessID = sess, id
	return nil
}

func (r *Runner) needSession() error {
	if r.sess == nil {
		return fmt.Errorf("no active session; add a spawn step first")
	}
	return nil
}

func (r *Runner) teardown() {
	if r.sess == nil {
		return
	}
	if r.mgr != nil && r.sessID != "" {
		if err := r.mgr.Remove(r.sessID); err != nil {
			slog.Debug("session cleanup", "session_id", r.sessID, "error", err)
		}
	} else if err := r.sess.Close(); err != nil {
		slog.Debug("session close", "error", err)
	}
	r.sess, r.sessID = nil, ""
}
