// Package awscli drives the AWS CLI for ECS discovery, SSO login and
// interactive execute-command sessions.
package awscli

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/shiv122/ecsexec/internal/procmanager"
)

const (
	DefaultTool = "aws"
	PluginTool  = "session-manager-plugin"

	// LoginSuccess is returned by SSOLogin once the CLI reports success.
	LoginSuccess = "SSO login successful"
)

// Config configures a Client. Zero values use defaults.
type Config struct {
	// Tool is the AWS CLI executable name or path.
	Tool string

	// DefaultShell is used for ExecTargets that name no shell.
	DefaultShell string
}

// Client runs AWS CLI commands through the process manager.
type Client struct {
	runner   *procmanager.Runner
	logins   *procmanager.Cancellable
	sessions *procmanager.SessionManager
	logger   *slog.Logger

	tool         string
	defaultShell string

	cliChecked atomic.Bool
}

// New creates a Client. One-shot commands go through runner, SSO logins
// through logins and execute-command sessions through sessions.
func New(
	runner *procmanager.Runner,
	logins *procmanager.Cancellable,
	sessions *procmanager.SessionManager,
	logger *slog.Logger,
	cfg Config,
) *Client {
	c := &Client{
		runner:       runner,
		logins:       logins,
		sessions:     sessions,
		logger:       logger,
		tool:         cfg.Tool,
		defaultShell: cfg.DefaultShell,
	}

	if c.tool == "" {
		c.tool = DefaultTool
	}

	if c.defaultShell == "" {
		c.defaultShell = DefaultShell
	}

	return c
}

// CheckCLI verifies that the AWS CLI can be run. A successful check is
// remembered for the lifetime of the Client.
func (c *Client) CheckCLI(ctx context.Context) error {
	if c.cliChecked.Load() {
		return nil
	}

	_, err := c.runner.Invoke(ctx, c.tool, []string{"--version"})
	if err != nil {
		var notFound *procmanager.ToolNotFoundError
		if errors.As(err, &notFound) {
			return &CLIUnavailableError{Reason: cliNotInstalled, Err: err}
		}

		var failed *procmanager.CommandFailedError
		if errors.As(err, &failed) {
			return &CLIUnavailableError{Reason: cliBroken, Err: err}
		}

		return err
	}

	c.cliChecked.Store(true)

	return nil
}

// ListClusters returns the ARNs of the ECS clusters visible to profile in
// region.
func (c *Client) ListClusters(ctx context.Context, profile, region string) ([]string, error) {
	args := appendScope([]string{"ecs", "list-clusters"}, profile, region)

	return c.listARNs(ctx, args, "clusterArns")
}

// ListServices returns the ARNs of the services in cluster.
func (c *Client) ListServices(
	ctx context.Context,
	profile, region, cluster string,
) ([]string, error) {
	args := appendScope(
		[]string{"ecs", "list-services", "--cluster", cluster},
		profile,
		region,
	)

	return c.listARNs(ctx, args, "serviceArns")
}

// ListTasks returns the ARNs of the tasks in cluster, limited to service when
// it is non-empty.
func (c *Client) ListTasks(
	ctx context.Context,
	profile, region, cluster, service string,
) ([]string, error) {
	args := appendScope(
		[]string{"ecs", "list-tasks", "--cluster", cluster},
		profile,
		region,
	)

	if service != "" {
		args = append(args, "--service-name", service)
	}

	return c.listARNs(ctx, args, "taskArns")
}

// DescribeTasks returns the raw describe-tasks document for taskARN.
func (c *Client) DescribeTasks(
	ctx context.Context,
	profile, region, cluster, taskARN string,
) (map[string]any, error) {
	args := appendScope(
		[]string{"ecs", "describe-tasks", "--cluster", cluster, "--tasks", taskARN},
		profile,
		region,
	)

	var doc map[string]any
	if err := c.invokeJSON(ctx, args, &doc); err != nil {
		return nil, err
	}

	if doc == nil {
		doc = map[string]any{}
	}

	return doc, nil
}

func (c *Client) listARNs(ctx context.Context, args []string, field string) ([]string, error) {
	var doc map[string]any
	if err := c.invokeJSON(ctx, args, &doc); err != nil {
		return nil, err
	}

	arns := stringList(doc, field)

	c.logger.Debug("listed resources", "field", field, "count", len(arns))

	return arns, nil
}

func (c *Client) invokeJSON(ctx context.Context, args []string, v any) error {
	if err := c.CheckCLI(ctx); err != nil {
		return err
	}

	return c.runner.InvokeJSON(ctx, c.tool, append(args, "--output", "json"), v)
}

// stringList returns the string elements of doc[field]. A missing or
// non-array field yields an empty list and non-string elements are skipped.
func stringList(doc map[string]any, field string) []string {
	out := []string{}

	items, ok := doc[field].([]any)
	if !ok {
		return out
	}

	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

// LoginID returns the id under which the SSO login for profile runs.
func LoginID(profile string) string {
	return "sso-" + profile
}

// SSOLogin runs `aws sso login` for profile and waits for it to finish. A
// login already in progress for the same profile is cancelled first. If the
// login is cancelled while waiting, procmanager.ErrCancelled is returned.
func (c *Client) SSOLogin(ctx context.Context, profile string) (string, error) {
	if err := c.CheckCLI(ctx); err != nil {
		return "", err
	}

	args := appendScope([]string{"sso", "login"}, profile, "")

	c.logger.Info("starting sso login", "profile", profile)

	status, err := c.logins.Run(ctx, LoginID(profile), c.tool, args)
	if err != nil {
		return "", err
	}

	if status.ExitCode != 0 {
		return "", &LoginFailedError{
			Profile:  profile,
			ExitCode: status.ExitCode,
			Stderr:   strings.TrimSpace(string(status.Stderr)),
		}
	}

	c.logger.Info("sso login succeeded", "profile", profile)

	return LoginSuccess, nil
}

// LoginInProgress reports whether an SSO login for profile is running.
func (c *Client) LoginInProgress(profile string) bool {
	return c.logins.Running(LoginID(profile))
}

// CancelSSOLogin kills the SSO login in progress for profile, if any.
func (c *Client) CancelSSOLogin(profile string) error {
	return c.logins.Cancel(LoginID(profile))
}

// ToolStatus reports whether a required tool is installed.
type ToolStatus struct {
	Name      string
	Installed bool
	Version   string
}

// CheckRequiredTools probes the AWS CLI and the Session Manager plugin, both
// of which execute-command needs.
func (c *Client) CheckRequiredTools(ctx context.Context) []ToolStatus {
	tools := []struct {
		name    string
		command string
	}{
		{"AWS CLI", c.tool},
		{"Session Manager Plugin", PluginTool},
	}

	statuses := make([]ToolStatus, 0, len(tools))

	for _, tool := range tools {
		status := ToolStatus{Name: tool.name}

		result, err := c.runner.Invoke(ctx, tool.command, []string{"--version"})
		if err != nil {
			c.logger.Debug("tool check failed", "tool", tool.command, "err", err)
		} else {
			status.Installed = true
			status.Version = firstLine(string(result.Stdout))
		}

		statuses = append(statuses, status)
	}

	return statuses
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// StartExecSession opens an interactive shell in the target container under
// sessionID. Output and exit are published by the session manager.
func (c *Client) StartExecSession(
	ctx context.Context,
	sessionID string,
	target ExecTarget,
) error {
	if err := target.Validate(); err != nil {
		return err
	}

	if target.Shell == "" {
		target.Shell = c.defaultShell
	}

	c.logger.Info(
		"starting exec session",
		"id", sessionID,
		"cluster", target.Cluster,
		"task", target.Task,
		"container", target.Container,
	)

	return c.sessions.Start(ctx, sessionID, c.tool, ExecArgs(target))
}

// SendInput forwards data to the session's stdin.
func (c *Client) SendInput(sessionID string, data []byte) error {
	return c.sessions.SendInput(sessionID, data)
}

// CloseSession terminates the session.
func (c *Client) CloseSession(sessionID string) error {
	return c.sessions.Close(sessionID)
}

// Namespace returns the topic namespace that session events are published
// under.
func (c *Client) Namespace() string {
	return c.sessions.Namespace()
}

// Shutdown cancels any SSO login in progress and kills every session,
// waiting until ctx is done for their exit events.
func (c *Client) Shutdown(ctx context.Context) {
	c.logins.CancelAll()

	if ids := c.sessions.Sessions(); len(ids) > 0 {
		c.logger.Info("closing sessions", "count", len(ids), "ids", ids)
	}

	c.sessions.Shutdown(ctx)
}
