package awscli

import (
	"fmt"
	"strings"
)

// DefaultShell is run in the container when an ExecTarget names none.
const DefaultShell = "/bin/bash"

// ExecTarget identifies a container to open an interactive shell in.
type ExecTarget struct {
	Profile   string
	Region    string
	Cluster   string
	Task      string
	Container string
	Shell     string
}

// Validate checks that the fields execute-command requires are set.
func (t ExecTarget) Validate() error {
	var missing []string

	if t.Cluster == "" {
		missing = append(missing, "cluster")
	}

	if t.Task == "" {
		missing = append(missing, "task")
	}

	if t.Container == "" {
		missing = append(missing, "container")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidTarget, strings.Join(missing, ", "))
	}

	return nil
}

// ExecArgs returns the AWS CLI arguments that open an interactive shell in the
// target container.
func ExecArgs(t ExecTarget) []string {
	shell := t.Shell
	if shell == "" {
		shell = DefaultShell
	}

	args := []string{
		"ecs", "execute-command",
		"--cluster", t.Cluster,
		"--task", t.Task,
		"--container", t.Container,
		"--command", shell,
		"--interactive",
	}

	return appendScope(args, t.Profile, t.Region)
}

// appendScope adds --region and --profile for the non-empty values.
func appendScope(args []string, profile, region string) []string {
	if region != "" {
		args = append(args, "--region", region)
	}

	if profile != "" {
		args = append(args, "--profile", profile)
	}

	return args
}
