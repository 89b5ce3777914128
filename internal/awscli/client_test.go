package awscli_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shiv122/ecsexec/internal/awscli"
	"github.com/shiv122/ecsexec/internal/eventbus"
	"github.com/shiv122/ecsexec/internal/procmanager"
)

type fakeCLI struct {
	dir    string
	client *awscli.Client
	bus    *eventbus.Bus
}

// newFakeCLI installs a fake `aws` script that answers --version and then
// runs body for any other invocation. Every invocation's arguments are
// appended to args.log, one line each.
func newFakeCLI(t *testing.T, body string) *fakeCLI {
	t.Helper()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "args.log")

	script := "#!/bin/sh\n" +
		`echo "$*" >> '` + logPath + "'\n" +
		`if [ "$1" = "--version" ]; then echo "aws-cli/2.15.0 Python/3.11.6"; exit 0; fi` + "\n" +
		body + "\n"

	if err := os.WriteFile(filepath.Join(dir, "aws"), []byte(script), 0o755); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	searchPath := dir + string(os.PathListSeparator) + os.Getenv("PATH")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(logger)

	sessions := procmanager.NewSessionManager(
		procmanager.NewRegistry(),
		bus,
		logger,
		procmanager.SessionConfig{SearchPath: searchPath},
	)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sessions.Shutdown(ctx)
	})

	client := awscli.New(
		procmanager.NewRunner(logger, 5*time.Second, searchPath),
		procmanager.NewCancellable(procmanager.NewRegistry(), logger, searchPath),
		sessions,
		logger,
		awscli.Config{},
	)

	return &fakeCLI{dir: dir, client: client, bus: bus}
}

func (f *fakeCLI) calls(t *testing.T) []string {
	t.Helper()

	b, err := os.ReadFile(filepath.Join(f.dir, "args.log"))
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestClientList(t *testing.T) {
	t.Parallel()

	t.Run("Test list clusters", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(
			t,
			`echo '{"clusterArns":["arn:aws:ecs:eu-north-1:123:cluster/a"]}'`,
		)

		got, err := f.client.ListClusters(context.Background(), "dev", "eu-north-1")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		want := []string{"arn:aws:ecs:eu-north-1:123:cluster/a"}
		if !slices.Equal(got, want) {
			t.Errorf("expected clusters: got '%v', want '%v'", got, want)
		}

		calls := f.calls(t)
		wantCall := "ecs list-clusters --region eu-north-1 --profile dev --output json"
		if calls[len(calls)-1] != wantCall {
			t.Errorf("expected call: got '%s', want '%s'", calls[len(calls)-1], wantCall)
		}
	})

	t.Run("Test missing field yields empty list", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `echo '{}'`)

		got, err := f.client.ListClusters(context.Background(), "dev", "eu-north-1")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got == nil || len(got) != 0 {
			t.Errorf("expected empty list: got '%v'", got)
		}
	})

	t.Run("Test non-string elements are skipped", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `echo '{"serviceArns":["svc-a",42,null,"svc-b"]}'`)

		got, err := f.client.ListServices(context.Background(), "dev", "eu-north-1", "a")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		want := []string{"svc-a", "svc-b"}
		if !slices.Equal(got, want) {
			t.Errorf("expected services: got '%v', want '%v'", got, want)
		}
	})

	t.Run("Test list tasks with service filter", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `echo '{"taskArns":["task-1"]}'`)

		if _, err := f.client.ListTasks(
			context.Background(),
			"dev",
			"eu-north-1",
			"a",
			"web",
		); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		calls := f.calls(t)
		wantCall := "ecs list-tasks --cluster a --region eu-north-1 --profile dev --service-name web --output json"
		if calls[len(calls)-1] != wantCall {
			t.Errorf("expected call: got '%s', want '%s'", calls[len(calls)-1], wantCall)
		}
	})

	t.Run("Test describe tasks", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `echo '{"tasks":[{"lastStatus":"RUNNING"}],"failures":[]}'`)

		doc, err := f.client.DescribeTasks(
			context.Background(),
			"dev",
			"eu-north-1",
			"a",
			"task-1",
		)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		tasks, ok := doc["tasks"].([]any)
		if !ok || len(tasks) != 1 {
			t.Errorf("expected one task: got '%v'", doc["tasks"])
		}
	})

	t.Run("Test classified failure", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `echo 'Unable to locate credentials' >&2; exit 255`)

		_, err := f.client.ListClusters(context.Background(), "dev", "eu-north-1")

		var failed *procmanager.CommandFailedError
		if !errors.As(err, &failed) {
			t.Fatalf("expected to receive CommandFailedError: got '%v'", err)
		}

		want := "AWS credentials not found or invalid. Please sign in with SSO first."
		if failed.Reason != want {
			t.Errorf("expected reason: got '%s', want '%s'", failed.Reason, want)
		}
	})

	t.Run("Test version check is cached", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `echo '{"clusterArns":[]}'`)

		for range 2 {
			if _, err := f.client.ListClusters(context.Background(), "dev", "eu-north-1"); err != nil {
				t.Fatalf("expected not to receive error: got '%v'", err)
			}
		}

		var versionCalls int

		for _, call := range f.calls(t) {
			if call == "--version" {
				versionCalls++
			}
		}

		if versionCalls != 1 {
			t.Errorf("expected version checks: got '%d', want '%d'", versionCalls, 1)
		}
	})
}

func TestClientCheckCLI(t *testing.T) {
	t.Parallel()

	t.Run("Test missing CLI", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		dir := t.TempDir()

		client := awscli.New(
			procmanager.NewRunner(logger, 0, dir),
			procmanager.NewCancellable(procmanager.NewRegistry(), logger, dir),
			nil,
			logger,
			awscli.Config{},
		)

		err := client.CheckCLI(context.Background())

		var unavailable *awscli.CLIUnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("expected to receive CLIUnavailableError: got '%v'", err)
		}

		var notFound *procmanager.ToolNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("expected error to wrap ToolNotFoundError: got '%v'", err)
		}
	})

	t.Run("Test broken CLI", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		dir := t.TempDir()

		if err := os.WriteFile(
			filepath.Join(dir, "aws"),
			[]byte("#!/bin/sh\nexit 1\n"),
			0o755,
		); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		client := awscli.New(
			procmanager.NewRunner(logger, 0, dir),
			nil,
			nil,
			logger,
			awscli.Config{},
		)

		err := client.CheckCLI(context.Background())

		want := "AWS CLI is installed but not working properly. Please check your installation."
		if err == nil || err.Error() != want {
			t.Errorf("expected error: got '%v', want '%s'", err, want)
		}
	})
}

func TestClientSSOLogin(t *testing.T) {
	t.Parallel()

	t.Run("Test successful login", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `exit 0`)

		got, err := f.client.SSOLogin(context.Background(), "dev")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got != awscli.LoginSuccess {
			t.Errorf("expected message: got '%s', want '%s'", got, awscli.LoginSuccess)
		}

		calls := f.calls(t)
		if calls[len(calls)-1] != "sso login --profile dev" {
			t.Errorf("expected call: got '%s', want '%s'", calls[len(calls)-1], "sso login --profile dev")
		}
	})

	t.Run("Test failed login", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `exit 2`)

		_, err := f.client.SSOLogin(context.Background(), "dev")

		var failed *awscli.LoginFailedError
		if !errors.As(err, &failed) {
			t.Fatalf("expected to receive LoginFailedError: got '%v'", err)
		}

		if failed.ExitCode != 2 {
			t.Errorf("expected exit code: got '%d', want '%d'", failed.ExitCode, 2)
		}
	})

	t.Run("Test cancelled login", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `exec sleep 30`)

		errCh := make(chan error, 1)

		go func() {
			_, err := f.client.SSOLogin(context.Background(), "dev")
			errCh <- err
		}()

		deadline := time.Now().Add(5 * time.Second)

		// Cancel only once the login process has been registered.
		for !f.client.LoginInProgress("dev") {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for login to start")
			}

			time.Sleep(10 * time.Millisecond)
		}

		if err := f.client.CancelSSOLogin("dev"); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		select {
		case err := <-errCh:
			if !errors.Is(err, procmanager.ErrCancelled) {
				t.Errorf("expected to receive ErrCancelled: got '%v'", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for login to return")
		}
	})

	t.Run("Test cancel without login", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `exit 0`)

		if err := f.client.CancelSSOLogin("dev"); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}
	})
}

func TestClientCheckRequiredTools(t *testing.T) {
	t.Parallel()

	f := newFakeCLI(t, `exit 0`)

	got := f.client.CheckRequiredTools(context.Background())

	if len(got) != 2 {
		t.Fatalf("expected tool count: got '%d', want '%d'", len(got), 2)
	}

	if !got[0].Installed || got[0].Version != "aws-cli/2.15.0 Python/3.11.6" {
		t.Errorf("expected aws installed with version: got '%v'", got[0])
	}

	if got[1].Name != "Session Manager Plugin" {
		t.Errorf("expected tool name: got '%s', want '%s'", got[1].Name, "Session Manager Plugin")
	}
}

func TestClientExecSession(t *testing.T) {
	t.Parallel()

	t.Run("Test exec arguments", func(t *testing.T) {
		t.Parallel()

		got := awscli.ExecArgs(awscli.ExecTarget{
			Profile:   "dev",
			Region:    "eu-north-1",
			Cluster:   "a",
			Task:      "task-1",
			Container: "app",
		})

		want := []string{
			"ecs", "execute-command",
			"--cluster", "a",
			"--task", "task-1",
			"--container", "app",
			"--command", "/bin/bash",
			"--interactive",
			"--region", "eu-north-1",
			"--profile", "dev",
		}

		if !slices.Equal(got, want) {
			t.Errorf("expected args: got '%v', want '%v'", got, want)
		}
	})

	t.Run("Test invalid target", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `exit 0`)

		err := f.client.StartExecSession(
			context.Background(),
			"s1",
			awscli.ExecTarget{Cluster: "a"},
		)
		if !errors.Is(err, awscli.ErrInvalidTarget) {
			t.Errorf("expected to receive ErrInvalidTarget: got '%v'", err)
		}
	})

	t.Run("Test interactive session", func(t *testing.T) {
		t.Parallel()

		f := newFakeCLI(t, `exec cat`)

		w := f.bus.Watch(
			procmanager.Topic(procmanager.DefaultNamespace, procmanager.EventData, "s1"),
			procmanager.Topic(procmanager.DefaultNamespace, procmanager.EventExit, "s1"),
		)
		defer w.Close()

		if err := f.client.StartExecSession(
			context.Background(),
			"s1",
			awscli.ExecTarget{Cluster: "a", Task: "task-1", Container: "app"},
		); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := f.client.SendInput("s1", []byte("ping\n")); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		e, err := w.Next(ctx)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if string(e.Payload) != "ping\n" {
			t.Errorf("expected output: got '%s', want '%s'", e.Payload, "ping\n")
		}

		if err := f.client.CloseSession("s1"); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		e, err = w.Next(ctx)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		wantTopic := procmanager.Topic(procmanager.DefaultNamespace, procmanager.EventExit, "s1")
		if e.Topic != wantTopic {
			t.Errorf("expected topic: got '%s', want '%s'", e.Topic, wantTopic)
		}

		calls := f.calls(t)
		if !strings.HasPrefix(calls[len(calls)-1], "ecs execute-command --cluster a") {
			t.Errorf("expected execute-command call: got '%s'", calls[len(calls)-1])
		}
	})
}
