package awscli

import (
	"errors"
	"fmt"
)

var ErrInvalidTarget = errors.New("invalid exec target")

const (
	cliNotInstalled = "AWS CLI is not installed or not found in PATH. Please install AWS CLI v2 from https://aws.amazon.com/cli/"
	cliBroken       = "AWS CLI is installed but not working properly. Please check your installation."
)

// CLIUnavailableError is returned when the AWS CLI is missing or fails its
// version probe. Reason is suitable for showing to the user.
type CLIUnavailableError struct {
	Reason string
	Err    error
}

func (e *CLIUnavailableError) Error() string {
	return e.Reason
}

func (e *CLIUnavailableError) Unwrap() error {
	return e.Err
}

// LoginFailedError is returned when `aws sso login` exits non-zero.
type LoginFailedError struct {
	Profile  string
	ExitCode int
	Stderr   string
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf(
		"SSO login failed (exit code: %d). Please check your profile configuration in ~/.aws/config and try again.",
		e.ExitCode,
	)
}
