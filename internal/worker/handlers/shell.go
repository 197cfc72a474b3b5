package handlers

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rishansujesh/jobrun/internal/jobs"
)

type ShellArgs struct {
	Command    string            `json:"command" yaml:"command"`
	Dir        string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

type Result struct {
	Stdout string
	Status int // HTTP status; 0 for shell
}

func RunShell(ctx context.Context, a ShellArgs) (Result, error) {
	if a.Command == "" {
		return Result{}, fmt.Errorf("shell: command required")
	}
	to := time.Duration(a.TimeoutSec) * time.Second
	if to <= 0 {
		to = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	cmd := exec.CommandContext(cctx, "/bin/sh", "-c", a.Command)
	cmd.Dir = a.Dir
	cmd.WaitDelay = time.Second
	if len(a.Env) > 0 {
		cmd.Env = cmd.Environ()
		for k, v := range a.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	out, err := cmd.CombinedOutput()
	res := Result{Stdout: string(out)}

	if cctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("shell: timeout after %v", to)
	}
	if err != nil {
		return res, fmt.Errorf("shell: %w", err)
	}
	return res, nil
}

// Shell runs the command on every attempt; its combined output becomes the run output.
func Shell(a ShellArgs) jobs.WorkFunc {
	return func(ctx context.Context, at *jobs.Attempt) error {
		res, err := RunShell(ctx, a)
		if res.Stdout != "" {
			fmt.Fprint(at.Out, res.Stdout)
		}
		return err
	}
}
