// Package script defines YAML automation scripts, ordered send/expect
// steps executed against one interactive session at a time, and the
// runner that drives the expect engine with them.
package script

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/expectctl/internal/config"
)

var ErrInvalidScript = errors.New("invalid script")

// Sentinel pattern names usable inside expect/expect_exact lists.
const (
	NameEOF     = "EOF"
	NameTimeout = "TIMEOUT"
)

// Step is one script action. Exactly one action field must be set.
type Step struct {
	// Spawn starts a child process; the command string is split with
	// shell-style quoting (no shell metacharacter interpretation). Any
	// previously active session is closed first.
	Spawn string `yaml:"spawn,omitempty"`
	// NoEcho applies to Spawn: turn terminal echo off before the child
	// can write.
	NoEcho bool `yaml:"no_echo,omitempty"`

	Send        string  `yaml:"send,omitempty"`
	SendLine    *string `yaml:"send_line,omitempty"`
	SendControl string  `yaml:"send_control,omitempty"`

	// Expect matches regular expressions; entries "EOF" and "TIMEOUT"
	// are the sentinels. ExpectExact matches literal substrings, with the
	// same two sentinel names.
	Expect      []string `yaml:"expect,omitempty"`
	ExpectExact []string `yaml:"expect_exact,omitempty"`

	// Timeout overrides the session default for this step's expect call.
	Timeout config.Duration `yaml:"timeout,omitempty"`

	Wait  bool `yaml:"wait,omitempty"`
	Close bool `yaml:"close,omitempty"`
}

// Script is a named sequence of steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates script YAML.
func Parse(data []byte) (*Script, error) {
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Script) validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: script has no steps", ErrInvalidScript)
	}
	for i, step := range s.Steps {
		actions := 0
		if step.Spawn != "" {
			actions++
		}
		if step.Send != "" {
			actions++
		}
		if step.SendLine != nil {
			actions++
		}
		if step.SendControl != "" {
			actions++
		}
		if len(step.Expect) > 0 {
			actions++
		}
		if len(step.ExpectExact) > 0 {
			actions++
		}
		if step.Wait {
			actions++
		}
		if step.Close {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("%w: step %d must have exactly one action, has %d", ErrInvalidScript, i, actions)
		}
		if step.SendControl != "" && len(step.SendControl) != 1 {
			return fmt.Errorf("%w: step %d: send_control wants a single character, got %q", ErrInvalidScript, i, step.SendControl)
		}
		if step.NoEcho && step.Spawn == "" {
			return fmt.Errorf("%w: step %d: no_echo is only valid on spawn steps", ErrInvalidScript, i)
		}
	}
	return nil
}
