// Package util provides small shared helpers.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an executable by name. An explicit override via envVar
// wins, then a copy in the working directory, then PATH. The override and the
// local copy are checked for the executable bit before being accepted.
func FindBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if override := os.Getenv(envVar); override != "" && isExecutable(override) {
			return override, nil
		}
	}

	if local := "./" + name; isExecutable(local) {
		return local, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
