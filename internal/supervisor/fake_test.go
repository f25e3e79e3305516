package supervisor_test

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/supervisor"
)

// fakeLauncher hands out in-memory solvers and tracks how many are alive.
type fakeLauncher struct {
	delay      time.Duration
	ignoreTerm bool
	// stderr, when set, is what every process writes to its stderr
	stderr string

	mu      sync.Mutex
	procs   []*fakeProcess
	failErr error

	alive    atomic.Int32
	maxAlive atomic.Int32
}

func (l *fakeLauncher) Launch(_ context.Context, target kinematics.Vec3) (supervisor.Process, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failErr != nil {
		err := l.failErr
		l.failErr = nil
		return nil, err
	}

	r, w := io.Pipe()
	p := &fakeProcess{
		launcher:   l,
		target:     target,
		pid:        1000 + len(l.procs),
		ignoreTerm: l.ignoreTerm,
		out:        r,
		in:         w,
		done:       make(chan struct{}),
	}
	if l.stderr != "" {
		p.errOut = &lateReader{data: []byte(l.stderr), ready: p.done}
	}
	l.procs = append(l.procs, p)

	n := l.alive.Add(1)
	for {
		m := l.maxAlive.Load()
		if n <= m || l.maxAlive.CompareAndSwap(m, n) {
			break
		}
	}
	return p, nil
}

func (l *fakeLauncher) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

func (l *fakeLauncher) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) Proc(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

func (l *fakeLauncher) Last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

type fakeProcess struct {
	launcher   *fakeLauncher
	target     kinematics.Vec3
	pid        int
	ignoreTerm bool

	out    *io.PipeReader
	in     *io.PipeWriter
	errOut *lateReader

	exitOnce   sync.Once
	done       chan struct{}
	terminated atomic.Bool
	killed     atomic.Bool
}

func (p *fakeProcess) Stdout() io.Reader { return p.out }
func (p *fakeProcess) Stderr() io.Reader {
	if p.errOut == nil {
		return nil
	}
	return p.errOut
}
func (p *fakeProcess) Pid() int          { return p.pid }

func (p *fakeProcess) Terminate() error {
	p.terminated.Store(true)
	if !p.ignoreTerm {
		p.Exit()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.Exit()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.done
	if p.errOut != nil {
		p.errOut.Close()
	}
	p.launcher.alive.Add(-1)
	return nil
}

// Exit simulates the solver ending on its own.
func (p *fakeProcess) Exit() {
	p.exitOnce.Do(func() {
		p.in.Close()
		close(p.done)
	})
}

// Emit writes protocol lines to the solver's stdout. It fails once the
// process has exited.
func (p *fakeProcess) Emit(lines ...string) error {
	_, err := io.WriteString(p.in, strings.Join(lines, "\n")+"\n")
	return err
}

// lateReader delivers its data shortly after the process exited and loses
// whatever is unread once closed, the way an os pipe behaves when
// exec.Cmd.Wait closes it.
type lateReader struct {
	ready  <-chan struct{}
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (r *lateReader) Read(b []byte) (int, error) {
	<-r.ready
	time.Sleep(20 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, os.ErrClosed
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *lateReader) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// syncBuffer is a log sink safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
