package procmanager

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync/atomic"
	"time"
)

// waitDelay bounds how long Wait blocks on captured output after the process
// has exited, e.g. when a grandchild still holds the pipe open.
const waitDelay = 2 * time.Second

// StdioMode selects how a Process is connected to its parent.
type StdioMode int

const (
	// StdioCapture buffers stdout and stderr in memory. There is no stdin.
	StdioCapture StdioMode = iota

	// StdioPiped connects stdin, stdout and stderr to OS pipes owned by the
	// caller.
	StdioPiped
)

// Process represents a child process executed using exec.Cmd. It provides
// management of the process lifecycle, with exactly one goroutine reaping the
// process and an idempotent Kill.
type Process struct {
	id          string
	program     string
	state       AtomicProcessState
	interrupted atomic.Bool

	cmd          *exec.Cmd
	processState atomic.Pointer[os.ProcessState]
	waitErr      error
	kill         func(*os.Process) error

	stdin     *os.File
	stdout    *os.File
	stderr    *os.File
	childEnds []*os.File

	stdoutBuf bytes.Buffer
	stderrBuf bytes.Buffer

	done chan struct{}
}

// ProcessStatus represents the status of a Process, including its state,
// exit code, and whether it was killed.
type ProcessStatus struct {
	State       ProcessState
	ExitCode    int
	Interrupted bool
	Stdout      []byte
	Stderr      []byte
}

// NewProcess creates a new Process with the given id, program and args. The
// program is resolved against searchPath, which is also exported to the child
// as its PATH.
func NewProcess(
	id string,
	program string,
	args []string,
	searchPath string,
	mode StdioMode,
) (*Process, error) {
	if program == "" {
		return nil, fmt.Errorf("program cannot be empty")
	}

	path, err := LookPath(program, searchPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Env = withPath(os.Environ(), searchPath)
	configureProcAttr(cmd)

	p := &Process{
		id:      id,
		program: program,
		cmd:     cmd,
		kill:    killProcessGroup,
		done:    make(chan struct{}),
	}

	switch mode {
	case StdioPiped:
		if err := p.pipeStdio(); err != nil {
			return nil, err
		}
	default:
		cmd.Stdout = &p.stdoutBuf
		cmd.Stderr = &p.stderrBuf
		cmd.WaitDelay = waitDelay
	}

	p.state.Store(ProcessStateCreated)

	return p, nil
}

func (p *Process) pipeStdio() error {
	var opened []*os.File

	fail := func(err error) error {
		for _, f := range opened {
			f.Close()
		}

		return fmt.Errorf("failed to create os pipe: %w", err)
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return fail(err)
	}
	opened = append(opened, inR, inW)

	outR, outW, err := os.Pipe()
	if err != nil {
		return fail(err)
	}
	opened = append(opened, outR, outW)

	errR, errW, err := os.Pipe()
	if err != nil {
		return fail(err)
	}

	p.cmd.Stdin = inR
	p.cmd.Stdout = outW
	p.cmd.Stderr = errW

	p.stdin = inW
	p.stdout = outR
	p.stderr = errR
	p.childEnds = []*os.File{inR, outW, errW}

	return nil
}

// CopyOutput additionally writes the output of a StdioCapture Process to
// stdout and stderr as it arrives. It must be called before Start.
func (p *Process) CopyOutput(stdout, stderr io.Writer) {
	p.cmd.Stdout = io.MultiWriter(&p.stdoutBuf, stdout)
	p.cmd.Stderr = io.MultiWriter(&p.stderrBuf, stderr)
}

// Start starts the Process. Trying to start a Process that is not in
// ProcessStateCreated returns an InvalidStateError.
func (p *Process) Start() error {
	if !p.state.CompareAndSwap(ProcessStateCreated, ProcessStateStarting) {
		return NewInvalidStateError(p.state.Load(), ProcessStateStarting)
	}

	err := p.cmd.Start()

	// The child holds its own copies now.
	for _, f := range p.childEnds {
		f.Close()
	}
	p.childEnds = nil

	if err != nil {
		p.state.Store(ProcessStateFailed)
		p.closeStdio()
		p.waitErr = err
		close(p.done)

		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return &ToolNotFoundError{Tool: p.program}
		}

		return &SpawnError{Tool: p.program, Err: err}
	}

	p.state.Store(ProcessStateStarted)

	go func() {
		err := p.cmd.Wait()

		p.waitErr = err
		p.processState.Store(p.cmd.ProcessState)
		p.state.Store(ProcessStateStopped)

		close(p.done)
	}()

	return nil
}

// Kill sends SIGKILL to the process group of a started Process. Killing a
// Process that has already exited, is already being killed, or never started
// is a no-op. If the signal can't be delivered the Process stays Started, so
// Kill can be retried.
func (p *Process) Kill() error {
	if !p.state.CompareAndSwap(ProcessStateStarted, ProcessStateStopping) {
		return nil
	}

	p.interrupted.Store(true)

	// NOTE: There's a small window where the process exits and is reaped
	// between the CAS above and the signal below. The group may then no longer
	// exist, which is reported as 'process done' and tolerated.
	if err := p.kill(p.cmd.Process); err != nil && !isProcessDone(err) {
		if p.state.CompareAndSwap(ProcessStateStopping, ProcessStateStarted) {
			p.interrupted.Store(false)
		}

		return fmt.Errorf("kill process: %w", err)
	}

	return nil
}

// Wait blocks until the Process has exited and been reaped, then returns its
// status.
func (p *Process) Wait() *ProcessStatus {
	<-p.done

	return p.Status()
}

// ID returns the ID of the Process.
func (p *Process) ID() string {
	return p.id
}

// Program returns the program name as requested, before path resolution.
func (p *Process) Program() string {
	return p.program
}

// Pid returns the OS process id, or -1 if the process hasn't started.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return -1
	}

	return p.cmd.Process.Pid
}

// State returns the state of the Process.
func (p *Process) State() ProcessState {
	return p.state.Load()
}

// Interrupted returns whether the Process was killed.
func (p *Process) Interrupted() bool {
	return p.interrupted.Load()
}

// ExitCode returns the exit code of the process or -1 if the process hasn't
// exited or was terminated by a signal.
func (p *Process) ExitCode() int {
	ps := p.processState.Load()
	if ps == nil {
		return -1
	}

	return ps.ExitCode()
}

// Done returns a channel that is closed when the process has exited and been
// reaped, or failed to start.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stdin returns the write end of the process' stdin pipe. Only available in
// StdioPiped mode.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the read end of the process' stdout pipe. Only available in
// StdioPiped mode.
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// Stderr returns the read end of the process' stderr pipe. Only available in
// StdioPiped mode.
func (p *Process) Stderr() io.ReadCloser {
	return p.stderr
}

// Output returns the captured stdout and stderr. Only meaningful in
// StdioCapture mode after Done is closed.
func (p *Process) Output() ([]byte, []byte) {
	select {
	case <-p.done:
		return p.stdoutBuf.Bytes(), p.stderrBuf.Bytes()
	default:
		return nil, nil
	}
}

// Status returns the status of the Process.
func (p *Process) Status() *ProcessStatus {
	stdout, stderr := p.Output()

	return &ProcessStatus{
		State:       p.state.Load(),
		ExitCode:    p.ExitCode(),
		Interrupted: p.interrupted.Load(),
		Stdout:      stdout,
		Stderr:      stderr,
	}
}

// closeOutput closes the parent's read ends of stdout and stderr, unblocking
// any pending reads.
func (p *Process) closeOutput() {
	for _, f := range []*os.File{p.stdout, p.stderr} {
		if f != nil {
			f.Close()
		}
	}
}

func (p *Process) closeStdio() {
	p.closeOutput()

	if p.stdin != nil {
		p.stdin.Close()
	}
}
