//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// IsProcessRunning reports whether another process with the given executable
// name is alive. The calling process itself is ignored, and the comparison
// drops the .exe suffix so the answer is the same on Windows.
func IsProcessRunning(name string) (bool, error) {
	processes, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	wanted := normalizeExecutableName(name)
	ownPid := os.Getpid()

	for _, process := range processes {
		if process.Pid() == ownPid {
			continue
		}

		if normalizeExecutableName(process.Executable()) == wanted {
			return true, nil
		}
	}

	return false, nil
}

// normalizeExecutableName lowercases and strips the Windows executable suffix.
func normalizeExecutableName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}
