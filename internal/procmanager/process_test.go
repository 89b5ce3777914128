package procmanager_test

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"testing"

	"github.com/shiv122/ecsexec/internal/procmanager"
)

func newTestProcess(
	t *testing.T,
	program string,
	args []string,
	mode procmanager.StdioMode,
) *procmanager.Process {
	t.Helper()

	p, err := procmanager.NewProcess("p1", program, args, os.Getenv("PATH"), mode)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if p.ID() != "p1" {
		t.Errorf("expected process id: got '%s', want '%s'", p.ID(), "p1")
	}

	return p
}

func testProcessStatus(
	t *testing.T,
	got *procmanager.ProcessStatus,
	want procmanager.ProcessStatus,
) {
	t.Helper()

	if got.State != want.State {
		t.Errorf("expected state: got '%s', want '%s'", got.State, want.State)
	}

	if got.ExitCode != want.ExitCode {
		t.Errorf(
			"expected exit code: got '%d', want '%d'",
			got.ExitCode,
			want.ExitCode,
		)
	}

	if got.Interrupted != want.Interrupted {
		t.Errorf(
			"expected interrupted: got '%t', want '%t'",
			got.Interrupted,
			want.Interrupted,
		)
	}
}

func TestProcess(t *testing.T) {
	t.Parallel()

	t.Run("Test initial state", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(t, "echo", []string{"hi"}, procmanager.StdioCapture)

		testProcessStatus(t, p.Status(), procmanager.ProcessStatus{
			State:    procmanager.ProcessStateCreated,
			ExitCode: -1,
		})

		if p.Pid() != -1 {
			t.Errorf("expected pid: got '%d', want '%d'", p.Pid(), -1)
		}
	})

	t.Run("Test run to completion with captured output", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(
			t,
			"sh",
			[]string{"-c", "echo out; echo err >&2; exit 3"},
			procmanager.StdioCapture,
		)

		if err := p.Start(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		status := p.Wait()

		testProcessStatus(t, status, procmanager.ProcessStatus{
			State:    procmanager.ProcessStateStopped,
			ExitCode: 3,
		})

		if string(status.Stdout) != "out\n" {
			t.Errorf("expected stdout: got '%s', want '%s'", status.Stdout, "out\n")
		}

		if string(status.Stderr) != "err\n" {
			t.Errorf("expected stderr: got '%s', want '%s'", status.Stderr, "err\n")
		}
	})

	t.Run("Test kill long-running program", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(t, "sleep", []string{"30"}, procmanager.StdioCapture)

		if err := p.Start(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if p.State() != procmanager.ProcessStateStarted {
			t.Errorf(
				"expected state: got '%s', want '%s'",
				p.State(),
				procmanager.ProcessStateStarted,
			)
		}

		if err := p.Kill(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		testProcessStatus(t, p.Wait(), procmanager.ProcessStatus{
			State:       procmanager.ProcessStateStopped,
			ExitCode:    -1,
			Interrupted: true,
		})

		if err := p.Kill(); err != nil {
			t.Errorf("expected kill after exit to be a no-op: got '%v'", err)
		}
	})

	t.Run("Test kill after natural exit", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(t, "true", nil, procmanager.StdioCapture)

		if err := p.Start(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		<-p.Done()

		if err := p.Kill(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if p.Interrupted() {
			t.Errorf("expected interrupted: got '%t', want '%t'", true, false)
		}
	})

	t.Run("Test kill before start", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(t, "sleep", []string{"30"}, procmanager.StdioCapture)

		if err := p.Kill(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if p.State() != procmanager.ProcessStateCreated {
			t.Errorf(
				"expected state: got '%s', want '%s'",
				p.State(),
				procmanager.ProcessStateCreated,
			)
		}
	})

	t.Run("Test duplicate start", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(t, "sleep", []string{"30"}, procmanager.StdioCapture)

		if err := p.Start(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}
		defer p.Kill()

		if err := p.Start(); !errors.As(err, &procmanager.InvalidStateError{}) {
			t.Errorf("expected to receive InvalidStateError: got '%v'", err)
		}
	})

	t.Run("Test piped stdio", func(t *testing.T) {
		t.Parallel()

		p := newTestProcess(t, "cat", nil, procmanager.StdioPiped)

		if err := p.Start(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, err := p.Stdin().Write([]byte("ping\n")); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		p.Stdin().Close()

		got, err := io.ReadAll(p.Stdout())
		if err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if string(got) != "ping\n" {
			t.Errorf("expected output: got '%s', want '%s'", got, "ping\n")
		}

		testProcessStatus(t, p.Wait(), procmanager.ProcessStatus{
			State:    procmanager.ProcessStateStopped,
			ExitCode: 0,
		})
	})

	t.Run("Test non-existent program", func(t *testing.T) {
		t.Parallel()

		_, err := procmanager.NewProcess(
			"p1",
			"non-existent-program",
			nil,
			os.Getenv("PATH"),
			procmanager.StdioCapture,
		)

		var notFound *procmanager.ToolNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected to receive ToolNotFoundError: got '%v'", err)
		}

		if notFound.Tool != "non-existent-program" {
			t.Errorf(
				"expected tool: got '%s', want '%s'",
				notFound.Tool,
				"non-existent-program",
			)
		}

		if !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("expected error to wrap exec.ErrNotFound: got '%v'", err)
		}
	})

	t.Run("Test empty program", func(t *testing.T) {
		t.Parallel()

		if _, err := procmanager.NewProcess(
			"p1",
			"",
			nil,
			"",
			procmanager.StdioCapture,
		); err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})
}
