package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // missing key, rejected or failed write
	ExitCommandError = 2 // bad arguments, database cannot be opened
)

// ExitError carries the process exit code for a command failure.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, defaulting to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

type formatter struct {
	format string
	out    io.Writer
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) formatter {
	return formatter{format: opts.Format, out: cmd.OutOrStdout()}
}

func (f formatter) value(value any) error {
	switch f.format {
	case "json":
		return f.json(value)
	case "yaml":
		return f.yaml(value)
	default:
		return f.text(value)
	}
}

func (f formatter) dump(dump map[string]map[string]any) error {
	switch f.format {
	case "json":
		return f.json(dump)
	case "yaml":
		return f.yaml(dump)
	}
	areas := make([]string, 0, len(dump))
	for area := range dump {
		areas = append(areas, area)
	}
	sort.Strings(areas)
	for _, area := range areas {
		items := dump[area]
		keys := make([]string, 0, len(items))
		for key := range items {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			encoded, err := json.Marshal(items[key])
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(f.out, "%s/%s = %s\n", area, key, encoded); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f formatter) text(value any) error {
	if s, ok := value.(string); ok {
		_, err := fmt.Fprintln(f.out, s)
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.out, string(encoded))
	return err
}

func (f formatter) json(value any) error {
	encoder := json.NewEncoder(f.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (f formatter) yaml(value any) error {
	encoder := yaml.NewEncoder(f.out)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}
