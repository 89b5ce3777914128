// Package awsconfig reads profile names from the shared AWS config file.
package awsconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const DefaultProfile = "default"

var ErrNoHomeDir = errors.New("could not find home directory")

const missingConfigHint = `Please create ~/.aws/config with your AWS SSO profiles. Example:

[profile my-profile]
sso_start_url = https://your-sso-portal.awsapps.com/start
sso_region = us-east-1
sso_account_id = 123456789012
sso_role_name = YourRole
region = eu-north-1`

// ConfigPath returns the location of the shared AWS config file in the
// user's home directory.
func ConfigPath() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}

	if home == "" {
		return "", ErrNoHomeDir
	}

	return filepath.Join(home, ".aws", "config"), nil
}

// ParseProfiles returns the profile names declared in content, in file order.
// Both `[profile name]` and `[default]` sections are recognised. If none are
// found the result is just "default".
func ParseProfiles(content string) []string {
	var profiles []string

	// Lines may be arbitrarily long, e.g. an inlined credential_process.
	for line := range strings.Lines(content) {
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, "[profile "):
			name, ok := strings.CutSuffix(strings.TrimPrefix(line, "[profile "), "]")
			if ok {
				profiles = append(profiles, name)
			}
		case strings.HasPrefix(line, "[default]"):
			profiles = append(profiles, DefaultProfile)
		}
	}

	if len(profiles) == 0 {
		profiles = []string{DefaultProfile}
	}

	return profiles
}

// ListProfiles reads the config file at path and returns its profile names.
// An empty path uses ConfigPath.
func ListProfiles(path string) ([]string, error) {
	if path == "" {
		var err error

		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf(
				"AWS configuration file not found at: %s\n\n%s: %w",
				path,
				missingConfigHint,
				err,
			)
		}

		return nil, fmt.Errorf(
			"failed to read AWS config file at %s: %w",
			path,
			err,
		)
	}

	return ParseProfiles(string(content)), nil
}
