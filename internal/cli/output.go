package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stampview/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query or scenario failure
	ExitCommandError = 2 // Bad arguments, unreadable config, unopenable store
)

// Error codes carried in JSON error responses.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidArg    = "INVALID_ARGUMENT"
	CodeScenarioFail  = "SCENARIO_FAILED"
	CodeInternalError = "INTERNAL"
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error

	reported bool // already written by a Printer
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

// Reported reports whether the failure was already written to the
// command's output.
func (e *ExitError) Reported() bool {
	return e.reported
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, ExitFailure when err
// carries none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope every command writes in json format.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failure in a JSON response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Printer writes command results in the format chosen by --format.
type Printer struct {
	Format  string
	Out     io.Writer
	Err     io.Writer // diagnostics; keeps JSON on Out parseable
	Verbose bool
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// Print writes data as a JSON envelope, or calls text for text output.
func (p *Printer) Print(data any, text func(w io.Writer)) error {
	if p.Format == "json" {
		return p.encode(Response{Status: "ok", Data: data})
	}
	text(p.Out)
	return nil
}

// Fail reports a failure and returns an ExitError with exitCode.
func (p *Printer) Fail(exitCode int, code, message string) error {
	if p.Format == "json" {
		if err := p.encode(Response{Status: "error", Error: &ResponseError{Code: code, Message: message}}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(p.Err, "Error [%s]: %s\n", code, message)
	}
	return &ExitError{Code: exitCode, Message: message, reported: true}
}

// Debugf writes a diagnostic line when verbose output is enabled.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	fmt.Fprintf(p.Err, format+"\n", args...)
}

func (p *Printer) encode(r Response) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
