package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Requirement defines an external program birdsync relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Script marks a file handed to an interpreter; it only needs to exist.
	Script bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		case req.Script:
			if info, err := os.Stat(cmd); err != nil || info.IsDir() {
				status.Detail = fmt.Sprintf("script %q not found", cmd)
			} else {
				status.Available = true
			}
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

var interpreters = map[string]bool{
	"python": true, "python3": true, "bash": true, "sh": true, "node": true, "uv": true, "uvx": true,
}

// CommandRequirements describes a configured collaborator command line: the
// program itself and, for interpreter invocations, the script it runs.
// Relative paths containing a separator are resolved against projectRoot.
func CommandRequirements(name, description, projectRoot string, command []string) []Requirement {
	if len(command) == 0 {
		return []Requirement{{Name: name, Description: description}}
	}
	program := resolve(projectRoot, command[0])
	reqs := []Requirement{{Name: name, Command: program, Description: description}}
	base := strings.TrimSuffix(filepath.Base(program), filepath.Ext(program))
	if runtime.GOOS == "windows" {
		base = strings.ToLower(base)
	}
	if interpreters[base] && len(command) > 1 && !strings.HasPrefix(command[1], "-") && !strings.Contains(command[1], "{") {
		reqs = append(reqs, Requirement{
			Name:        name + " script",
			Command:     resolve(projectRoot, command[1]),
			Description: description,
			Script:      true,
		})
	}
	return reqs
}

func resolve(projectRoot, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || !strings.ContainsRune(path, '/') || projectRoot == "" {
		return path
	}
	return filepath.Join(projectRoot, path)
}
