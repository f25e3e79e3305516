package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/san-kum/armsim/internal/kinematics"
)

// Process is a running solver.
type Process interface {
	// Stdout carries the protocol stream.
	Stdout() io.Reader
	// Stderr carries diagnostics; nil when not captured.
	Stderr() io.Reader
	Pid() int
	// Terminate asks the process to exit.
	Terminate() error
	// Kill forces the process to exit.
	Kill() error
	// Wait reaps the process. It is called exactly once.
	Wait() error
}

// Launcher starts a solver for a target. The supervisor stays agnostic of
// how the process is built.
type Launcher interface {
	Launch(ctx context.Context, target kinematics.Vec3) (Process, error)
}

// DefaultSolverPath returns the platform's default solver executable.
func DefaultSolverPath() string {
	if runtime.GOOS == "windows" {
		return "main.exe"
	}
	return "./main"
}

// ExecLauncher runs a solver binary with the target coordinates as its last
// three arguments.
type ExecLauncher struct {
	Path string
	// ExtraArgs are passed before the coordinates.
	ExtraArgs []string
	// WaitDelay bounds how long Wait lingers on I/O after the process exits.
	WaitDelay time.Duration
}

// TargetArgs formats a target as decimal command-line arguments.
func TargetArgs(target kinematics.Vec3) []string {
	return []string{
		strconv.FormatFloat(target.X, 'f', -1, 64),
		strconv.FormatFloat(target.Y, 'f', -1, 64),
		strconv.FormatFloat(target.Z, 'f', -1, 64),
	}
}

func (l *ExecLauncher) Launch(ctx context.Context, target kinematics.Vec3) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.Path
	if path == "" {
		path = DefaultSolverPath()
	}

	args := make([]string, 0, len(l.ExtraArgs)+3)
	args = append(args, l.ExtraArgs...)
	args = append(args, TargetArgs(target)...)

	cmd := exec.Command(path, args...)
	cmd.WaitDelay = l.WaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrSolverNotFound, err)
		}
		return nil, err
	}

	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Pid() int          { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

func (p *execProcess) Terminate() error {
	// no SIGTERM on windows
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return ignoreDone(p.cmd.Process.Signal(syscall.SIGTERM))
}

func (p *execProcess) Kill() error {
	return ignoreDone(p.cmd.Process.Kill())
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
