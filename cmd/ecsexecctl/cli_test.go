package main

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/shiv122/ecsexec/api/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeServer stands in for ecsexecd and records the requests it receives.
type fakeServer struct {
	api.UnimplementedSessionServiceServer

	mu       sync.Mutex
	requests map[string]*structpb.Struct

	input chan []byte
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		requests: make(map[string]*structpb.Struct),
		input:    make(chan []byte, 16),
	}
}

func (f *fakeServer) record(method string, in *structpb.Struct) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests[method] = in
}

func (f *fakeServer) request(method string) *structpb.Struct {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[method]
}

func (f *fakeServer) ListClusters(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	f.record("ListClusters", in)
	return api.StringsValue([]string{"arn:cluster/a", "arn:cluster/b"}), nil
}

func (f *fakeServer) ListServices(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.NotFound, "cluster not found")
}

func (f *fakeServer) ListTasks(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	f.record("ListTasks", in)
	return api.StringsValue([]string{"arn:task/a/1"}), nil
}

func (f *fakeServer) DescribeTasks(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return structpb.NewValue(map[string]any{
		"tasks": []any{map[string]any{"lastStatus": "RUNNING"}},
	})
}

func (f *fakeServer) CheckTools(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return api.ToolsValue([]api.Tool{
		{Name: "AWS CLI", Installed: true, Version: "aws-cli/2.15.0"},
		{Name: "Session Manager Plugin"},
	}), nil
}

func (f *fakeServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	f.record("Login", in)
	return structpb.NewStringValue("SSO login successful"), nil
}

func (f *fakeServer) CancelLogin(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	f.record("CancelLogin", in)
	return structpb.NewBoolValue(api.ParseLoginRequest(in).Profile == "prod"), nil
}

func (f *fakeServer) StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	f.record("StartSession", in)
	return structpb.NewStringValue(api.ParseStartSessionRequest(in).SessionID), nil
}

func (f *fakeServer) SendInput(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	req, err := api.ParseSendInputRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	f.input <- req.Data

	return api.Empty(), nil
}

func (f *fakeServer) CloseSession(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	f.record("CloseSession", in)
	return api.Empty(), nil
}

// Watch replays a short session: output on both streams, then exit once some
// input has arrived.
func (f *fakeServer) Watch(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	for _, e := range []api.WatchEvent{
		{Kind: api.EventReady},
		{Kind: api.EventData, Payload: "hello\n"},
		{Kind: api.EventError, Payload: "warning\n"},
	} {
		if err := stream.Send(e.Struct()); err != nil {
			return err
		}
	}

	select {
	case <-f.input:
	case <-time.After(5 * time.Second):
	case <-stream.Context().Done():
		return stream.Context().Err()
	}

	return stream.Send(api.WatchEvent{Kind: api.EventExit}.Struct())
}

type testEnv struct {
	server     *fakeServer
	port       string
	configPath string
	awsConfig  string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to setup listener: '%v'", err)
	}

	fake := newFakeServer()

	s := grpc.NewServer()
	api.RegisterSessionServiceServer(s, fake)

	go s.Serve(listener)

	t.Cleanup(s.Stop)

	dir := t.TempDir()

	env := &testEnv{
		server:     fake,
		port:       strconv.Itoa(listener.Addr().(*net.TCPAddr).Port),
		configPath: filepath.Join(dir, "config.yaml"),
		awsConfig:  filepath.Join(dir, "aws-config"),
	}

	content := "aws:\n" +
		"  default_profile: dev\n" +
		"  config_file: " + env.awsConfig + "\n" +
		"history:\n" +
		"  file: " + filepath.Join(dir, "history.yaml") + "\n"

	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: '%v'", err)
	}

	return env
}

func (env *testEnv) runCLI(
	t *testing.T,
	stdin string,
	args ...string,
) (string, string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	cliArgs := []string{
		"--config", env.configPath,
		"--server-host", "127.0.0.1",
		"--server-port", env.port,
	}

	cmd := newCLI().rootCmd()
	cmd.SetArgs(append(cliArgs, args...))

	var stdout, stderr strings.Builder

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.ExecuteContext(ctx)

	return stdout.String(), stderr.String(), err
}

func field(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func TestCLI(t *testing.T) {
	t.Parallel()

	t.Run("Test clusters", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		stdout, _, err := env.runCLI(t, "", "clusters", "--region", "us-east-1")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if stdout != "arn:cluster/a\narn:cluster/b\n" {
			t.Errorf("expected clusters: got '%s'", stdout)
		}

		req := env.server.request("ListClusters")
		if field(req, "profile") != "dev" || field(req, "region") != "us-east-1" {
			t.Errorf("expected scope from config and flags: got '%v'", req)
		}
	})

	t.Run("Test tasks with service", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		if _, _, err := env.runCLI(t, "", "tasks", "main", "--service", "web"); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		req := env.server.request("ListTasks")
		if field(req, "cluster") != "main" || field(req, "service") != "web" {
			t.Errorf("expected cluster and service: got '%v'", req)
		}
	})

	t.Run("Test server error is mapped", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		_, _, err := env.runCLI(t, "", "services", "main")
		if err == nil || err.Error() != "not found" {
			t.Errorf("expected not found error: got '%v'", err)
		}
	})

	t.Run("Test describe prints JSON", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		stdout, _, err := env.runCLI(t, "", "describe", "main", "arn:task/a/1")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if !strings.Contains(stdout, `"lastStatus": "RUNNING"`) {
			t.Errorf("expected task JSON: got '%s'", stdout)
		}
	})

	t.Run("Test tools", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		stdout, _, err := env.runCLI(t, "", "tools")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if !strings.Contains(stdout, "AWS CLI") || !strings.Contains(stdout, "aws-cli/2.15.0") {
			t.Errorf("expected tools table: got '%s'", stdout)
		}
	})

	t.Run("Test login and logout", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		stdout, _, err := env.runCLI(t, "", "login", "--profile", "prod")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if stdout != "SSO login successful\n" {
			t.Errorf("expected login message: got '%s'", stdout)
		}

		if got := field(env.server.request("Login"), "profile"); got != "prod" {
			t.Errorf("expected login profile: got '%s', want 'prod'", got)
		}

		stdout, _, err = env.runCLI(t, "", "logout")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := field(env.server.request("CancelLogin"), "profile"); got != "dev" {
			t.Errorf("expected cancel profile: got '%s', want 'dev'", got)
		}

		if stdout != "No SSO login in progress\n" {
			t.Errorf("expected no login message: got '%s'", stdout)
		}

		stdout, _, err = env.runCLI(t, "", "cancel-login", "--profile", "prod")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if stdout != "SSO login cancelled\n" {
			t.Errorf("expected cancelled message: got '%s'", stdout)
		}
	})

	t.Run("Test profiles", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		if err := os.WriteFile(
			env.awsConfig,
			[]byte("[default]\nregion = eu-north-1\n\n[profile dev]\nsso_session = corp\n"),
			0o644,
		); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		stdout, _, err := env.runCLI(t, "", "profiles")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if stdout != "default\ndev\n" {
			t.Errorf("expected profiles: got '%s'", stdout)
		}
	})

	t.Run("Test profiles without AWS config", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		if _, _, err := env.runCLI(t, "", "profiles"); err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})

	t.Run("Test exec session and history", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		stdout, stderr, err := env.runCLI(t, "ls\n", "exec", "main", "t1", "app")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if stdout != "hello\n" {
			t.Errorf("expected session output: got '%s', want '%s'", stdout, "hello\n")
		}

		if !strings.Contains(stderr, "warning") {
			t.Errorf("expected session error output: got '%s'", stderr)
		}

		start := env.server.request("StartSession")
		if field(start, "cluster") != "main" || field(start, "container") != "app" {
			t.Errorf("expected target in start request: got '%v'", start)
		}

		sessionID := field(start, "session_id")
		if sessionID == "" {
			t.Errorf("expected session id in start request")
		}

		if got := field(env.server.request("CloseSession"), "session_id"); got != sessionID {
			t.Errorf("expected session to be closed: got '%s', want '%s'", got, sessionID)
		}

		stdout, _, err = env.runCLI(t, "", "history", "list")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		entryID := "dev-eu-north-1-main-t1-app-/bin/bash"
		if !strings.Contains(stdout, entryID) {
			t.Fatalf("expected history entry '%s': got '%s'", entryID, stdout)
		}

		if _, _, err := env.runCLI(t, "pwd\n", "exec", "--from-history", entryID); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, _, err := env.runCLI(t, "", "history", "rm", entryID); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, _, err := env.runCLI(t, "", "history", "rm", entryID); err == nil {
			t.Errorf("expected removing a missing entry to fail")
		}
	})

	t.Run("Test exec from unknown history entry", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		if _, _, err := env.runCLI(t, "", "exec", "--from-history", "nope"); err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})

	t.Run("Test exec requires a full target", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)

		if _, _, err := env.runCLI(t, "", "exec", "main", "t1"); err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})
}

func TestMapError(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		err  error
		want string
	}{
		"Test not found": {
			err:  status.Error(codes.NotFound, "session not found"),
			want: "not found",
		},
		"Test permission denied": {
			err:  status.Error(codes.PermissionDenied, "not authorised"),
			want: "permission denied",
		},
		"Test failed precondition keeps message": {
			err:  status.Error(codes.FailedPrecondition, "Access denied."),
			want: "Access denied.",
		},
		"Test deadline exceeded": {
			err:  status.Error(codes.DeadlineExceeded, "command timed out"),
			want: "timed out: command timed out",
		},
		"Test internal hides detail": {
			err:  status.Error(codes.Internal, "boom"),
			want: "internal server error",
		},
		"Test non-status error passes through": {
			err:  errors.New("plain"),
			want: "plain",
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			if got := mapError(config.err).Error(); got != config.want {
				t.Errorf("expected message: got '%s', want '%s'", got, config.want)
			}
		})
	}
}
