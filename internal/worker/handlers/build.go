package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/rishansujesh/jobrun/internal/jobs"
)

// Names of the built-in handlers.
const (
	NameShell = "shell"
	NameHTTP  = "http"
)

// Build decodes args for the named handler and returns its work function.
func Build(handler string, args map[string]any) (jobs.WorkFunc, error) {
	switch handler {
	case NameShell:
		var a ShellArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, fmt.Errorf("shell args: %w", err)
		}
		if a.Command == "" {
			return nil, fmt.Errorf("shell: command required")
		}
		return Shell(a), nil
	case NameHTTP:
		var a HTTPArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, fmt.Errorf("http args: %w", err)
		}
		if a.URL == "" {
			return nil, fmt.Errorf("http: url required")
		}
		return HTTP(a), nil
	default:
		return nil, fmt.Errorf("unknown handler: %s", handler)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
