package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary and the plugins that invoke it.
type Requirement struct {
	Name     string
	Command  string
	Plugins  []string
	Optional bool
}

// Status reports whether a requirement resolved on this host.
type Status struct {
	Requirement
	Path      string
	Available bool
	Detail    string
}

// CheckBinaries resolves every requirement through PATH, or directly when the
// command is a path.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		switch resolved, err := exec.LookPath(req.Command); {
		case req.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			status.Path = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required statuses that did not resolve.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
