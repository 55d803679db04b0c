package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/amlkernel/internal/harness"
	"github.com/roach88/amlkernel/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal  string
	Policy   string
	IDPrefix string
	Update   bool
	Filter   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario|dir>...",
		Short: "Run scenario files against the kernel",
		Long: `Run YAML scenarios against a fresh kernel session each.

Each scenario's event trace is compared with golden/<name>.golden next to
the scenario when that file exists. Use --update to (re)write golden files.
Use --journal to record every notification transaction into SQLite.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - command error (invalid path, unreadable journal)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record transactions into this SQLite journal")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy for scenarios without their own")
	cmd.Flags().StringVar(&opts.IDPrefix, "id-prefix", "", "identifier prefix for scenarios without their own")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "update golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name pattern")

	return cmd
}

// scenarioResult pairs a result with its file and golden outcome.
type scenarioResult struct {
	File   string          `json:"file"`
	Result *harness.Result `json:"result"`
	Golden string          `json:"golden,omitempty"` // "match", "updated", "mismatch"
}

func (r scenarioResult) passed() bool {
	return r.Result.Pass && r.Golden != "mismatch"
}

// runSummary is the JSON payload of a run.
type runSummary struct {
	Scenarios []scenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

func runScenarios(cmd *cobra.Command, args []string, opts *RunOptions) error {
	cfg := opts.settings()
	logger := opts.logger()

	journalPath := firstNonEmpty(opts.Journal, cfg.Journal)
	policyPath := firstNonEmpty(opts.Policy, cfg.Policy)
	idPrefix := firstNonEmpty(opts.IDPrefix, cfg.IDPrefix)

	var files []string
	for _, arg := range args {
		found, err := findScenarioFiles(arg, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if journalPath != "" {
		j, err := journal.Open(journalPath, journal.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		runOpts = append(runOpts, harness.WithJournal(j))
	}

	summary := runSummary{}
	for _, file := range files {
		sr, err := runOne(file, policyPath, idPrefix, opts.Update, runOpts)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to run %s", file), err)
		}
		if sr.passed() {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Scenarios = append(summary.Scenarios, sr)
		logger.Info("scenario finished", "file", file, "pass", sr.passed())
	}

	out := cmd.OutOrStdout()
	if cfg.Format == "json" {
		return outputRunJSON(out, summary)
	}
	return outputRunText(out, summary)
}

func runOne(file, policyPath, idPrefix string, update bool, runOpts []harness.Option) (scenarioResult, error) {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return scenarioResult{}, err
	}
	if scenario.Policy == "" {
		scenario.Policy = policyPath
	}
	if scenario.IDPrefix == "" {
		scenario.IDPrefix = idPrefix
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return scenarioResult{}, err
	}
	sr := scenarioResult{File: file, Result: result}

	goldenPath := filepath.Join(filepath.Dir(file), "golden", scenario.Name+".golden")
	got := harness.TraceText(result.Trace)
	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return sr, fmt.Errorf("failed to create golden dir: %w", err)
		}
		if err := os.WriteFile(goldenPath, got, 0o644); err != nil {
			return sr, fmt.Errorf("failed to write golden file: %w", err)
		}
		sr.Golden = "updated"
		return sr, nil
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return sr, fmt.Errorf("failed to read golden file: %w", err)
	case bytes.Equal(want, got):
		sr.Golden = "match"
	default:
		sr.Golden = "mismatch"
	}
	return sr, nil
}

// findScenarioFiles returns scenario files under path, filtered by a glob
// on the base name without extension.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("path not found: %w", err)
	}

	var files []string
	if !info.IsDir() {
		files = []string{path}
	} else {
		err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				if fi.Name() == "golden" && p != path {
					return filepath.SkipDir
				}
				return nil
			}
			ext := strings.ToLower(filepath.Ext(p))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory: %w", err)
		}
	}

	if filter == "" {
		return files, nil
	}
	var filtered []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

func outputRunText(w io.Writer, summary runSummary) error {
	for _, sr := range summary.Scenarios {
		if sr.passed() {
			suffix := ""
			if sr.Golden == "updated" {
				suffix = " (golden updated)"
			}
			fmt.Fprintf(w, "✓ %s (%d steps)%s\n", sr.Result.Name, sr.Result.Steps, suffix)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Result.Name)
		for _, e := range sr.Result.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
		if sr.Golden == "mismatch" {
			fmt.Fprintf(w, "    trace differs from golden (run with --update to accept)\n")
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed\n", summary.Passed, summary.Failed)

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

func outputRunJSON(w io.Writer, summary runSummary) error {
	resp := CLIResponse{Status: "ok", Data: summary}
	if summary.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", summary.Failed),
		}
	}
	if err := writeJSON(w, resp); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, resp.Error.Message)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
