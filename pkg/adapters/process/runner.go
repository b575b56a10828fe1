package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/aretw0/switchyard/pkg/domain"
)

// EnvPrefix prefixes the variables describing the call.
const EnvPrefix = "SWITCHYARD_"

// ErrProcessFailed wraps a non-zero exit or a failed start.
var ErrProcessFailed = errors.New("process failed")

// Runner invokes hook targets and validators as local processes.
// Only registered commands run (allow-listing). The JSON payload is written
// to stdin and stdout is returned as the response.
type Runner struct {
	mu       sync.RWMutex
	registry map[domain.Address]RegisteredProcess
	baseDir  string
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(targets map[domain.Address]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for addr, t := range targets {
			r.registry[addr] = RegisteredProcess{
				Name:    t.Name,
				Command: t.Command,
				Args:    t.Args,
				Env:     t.Environment,
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a new process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[domain.Address]RegisteredProcess),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(target domain.Address, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[target] = RegisteredProcess{Command: command, Args: args}
}

// Resolves reports whether the target has a registered command.
func (r *Runner) Resolves(target domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registry[target]
	return ok
}

func (r *Runner) Invoke(ctx context.Context, target domain.Address, payload []byte) ([]byte, error) {
	r.mu.RLock()
	proc, ok := r.registry[target]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no process registered for %s", domain.ErrInvalidReference, target)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = bytes.NewReader(payload)

	// Call metadata travels as environment variables, never as flags.
	env := []string{EnvPrefix + "TARGET=" + target.Hex()}
	if proc.Name != "" {
		env = append(env, EnvPrefix+"TARGET_NAME="+proc.Name)
	}
	for k, v := range proc.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v. Stderr: %s", ErrProcessFailed, target, err, strings.TrimSpace(stderr.String()))
	}
	return bytes.TrimSpace(stdout.Bytes()), nil
}
