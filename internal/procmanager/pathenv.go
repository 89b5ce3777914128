package procmanager

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// SearchPath returns base (normally $PATH) extended with the directories the
// AWS CLI is commonly installed to on the current platform. Desktop launchers
// often start applications with a minimal PATH that omits these.
func SearchPath(base string) string {
	var dirs []string

	if base != "" {
		dirs = append(dirs, base)
	}

	dirs = append(dirs, extraPathDirs(runtime.GOOS)...)

	return strings.Join(dirs, string(os.PathListSeparator))
}

func extraPathDirs(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/usr/local/bin",
			"/opt/homebrew/bin",
			"/opt/homebrew/opt/awscli/bin",
			"/usr/bin",
			"/bin",
		}
	case "linux":
		return []string{"/usr/local/bin", "/usr/bin", "/bin"}
	case "windows":
		if pf := os.Getenv("ProgramFiles"); pf != "" {
			return []string{filepath.Join(pf, "Amazon", "AWSCLIV2")}
		}
	}

	return nil
}

// LookPath searches for an executable named name in the directories of
// searchPath. Names containing a path separator are checked directly.
//
// exec.LookPath always consults the parent's own PATH, which is exactly the
// variable that may be too minimal here.
func LookPath(name, searchPath string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		for _, candidate := range candidates(name) {
			if isExecutable(candidate) {
				return candidate, nil
			}
		}

		return "", &ToolNotFoundError{Tool: name}
	}

	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			continue
		}

		for _, candidate := range candidates(filepath.Join(dir, name)) {
			if isExecutable(candidate) {
				return candidate, nil
			}
		}
	}

	return "", &ToolNotFoundError{Tool: name}
}

func candidates(path string) []string {
	if runtime.GOOS != "windows" || filepath.Ext(path) != "" {
		return []string{path}
	}

	return []string{path + ".exe", path + ".cmd", path + ".bat", path}
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}

	if runtime.GOOS == "windows" {
		return true
	}

	return fi.Mode().Perm()&0o111 != 0
}

// withPath returns env with any PATH entry replaced by searchPath.
func withPath(env []string, searchPath string) []string {
	if searchPath == "" {
		return env
	}

	env = slices.DeleteFunc(slices.Clone(env), func(kv string) bool {
		key, _, _ := strings.Cut(kv, "=")
		return strings.EqualFold(key, "PATH")
	})

	return append(env, "PATH="+searchPath)
}
