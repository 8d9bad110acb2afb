package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/harness"
	"github.com/roach88/stampview/internal/logging"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // glob over scenario names
}

// ScenarioResult holds the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // match, mismatch, updated or missing
	Errors []string `json:"errors,omitempty"`
}

// ScenarioSummary holds the outcome of a scenario run.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenarios-dir>",
		Short: "Run scenario files against a fresh engine",
		Long: `Run YAML scenario files, each against a fresh in-memory engine.

A scenario builds a graph under named stamps, drives transactions, and
checks query results and trace assertions. When golden/<name>.golden
exists next to the scenarios directory, the canonical trace must match
it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  stampview scenario ./testdata/scenarios
  stampview scenario ./testdata/scenarios --filter "tx*"
  stampview scenario ./testdata/scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *ScenarioOptions, dir string, cmd *cobra.Command) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "find scenarios", err)
	}

	logger := logging.Nop()
	if opts.Verbose {
		if logger, err = opts.Config.Logger(); err != nil {
			return WrapExitError(ExitCommandError, "configure logging", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	summary := ScenarioSummary{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		res := runScenarioFile(opts, file, logger)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Scenarios = append(summary.Scenarios, res)
	}

	p := newPrinter(opts.RootOptions, cmd)
	if err := p.Print(summary, func(w io.Writer) { writeScenarioSummary(w, summary) }); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

// findScenarioFiles returns the YAML files under dir whose base name
// matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(path), ext))
			if err != nil {
				return errors.Wrap(err, "invalid filter pattern")
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func runScenarioFile(opts *ScenarioOptions, file string, logger *zap.Logger) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: filepath.Base(file), Errors: []string{err.Error()}}
	}
	res := ScenarioResult{Name: scenario.Name}

	result, err := harness.Run(scenario, harness.WithLogger(logger))
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Errors = result.Errors

	golden := goldenFilePath(file, scenario.Name)
	got, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("snapshot: %v", err))
		return res
	}
	switch want, err := os.ReadFile(golden); {
	case opts.Update:
		if err := os.MkdirAll(filepath.Dir(golden), 0o755); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res
		}
		if err := os.WriteFile(golden, got, 0o644); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res
		}
		res.Golden = "updated"
	case os.IsNotExist(err):
		res.Golden = "missing"
	case err != nil:
		res.Errors = append(res.Errors, err.Error())
	case bytes.Equal(want, got):
		res.Golden = "match"
	default:
		res.Golden = "mismatch"
		res.Errors = append(res.Errors, fmt.Sprintf("trace differs from %s", golden))
	}
	res.Pass = len(res.Errors) == 0
	return res
}

// goldenFilePath places golden files in a golden/ directory beside the
// directory holding the scenario.
func goldenFilePath(file, name string) string {
	return filepath.Join(filepath.Dir(filepath.Dir(file)), "golden", name+".golden")
}

func writeScenarioSummary(w io.Writer, s ScenarioSummary) {
	if s.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, r := range s.Scenarios {
		mark := "✓"
		if !r.Pass {
			mark = "✗"
		}
		if r.Golden != "" && r.Golden != "match" {
			fmt.Fprintf(w, "%s %s (golden %s)\n", mark, r.Name, r.Golden)
		} else {
			fmt.Fprintf(w, "%s %s\n", mark, r.Name)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scenario Summary: %d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
}
