package procmanager

import "strings"

type stderrSignature struct {
	anyOf  []string
	allOf  []string
	reason string
}

// stderrSignatures is evaluated in order and the first match wins. The order
// matters: e.g. "config" is deliberately broad and shadows the profile check.
var stderrSignatures = []stderrSignature{
	{
		anyOf:  []string{"Unable to locate credentials", "InvalidClientTokenId"},
		reason: "AWS credentials not found or invalid. Please sign in with SSO first.",
	},
	{
		anyOf:  []string{"No such file or directory", "config"},
		reason: "AWS configuration file not found. Please ensure ~/.aws/config exists and contains your profiles.",
	},
	{
		allOf:  []string{"profile", "not found"},
		reason: "AWS profile not found. Please check your ~/.aws/config file.",
	},
	{
		anyOf:  []string{"AccessDenied", "UnauthorizedOperation"},
		reason: "Access denied. Your credentials may not have permission for this operation.",
	},
	{
		anyOf:  []string{"timeout", "Could not connect"},
		reason: "Network timeout or connection error. Please check your internet connection and try again.",
	},
}

func (s stderrSignature) matches(stderr string) bool {
	if len(s.allOf) > 0 {
		for _, sub := range s.allOf {
			if !strings.Contains(stderr, sub) {
				return false
			}
		}

		return true
	}

	for _, sub := range s.anyOf {
		if strings.Contains(stderr, sub) {
			return true
		}
	}

	return false
}

// ClassifyStderr maps the stderr of a failed command to a user-facing
// message. Unrecognised output is returned trimmed.
func ClassifyStderr(stderr string) string {
	for _, sig := range stderrSignatures {
		if sig.matches(stderr) {
			return sig.reason
		}
	}

	return strings.TrimSpace(stderr)
}
