package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/amlkernel/internal/policy"
)

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Work with CUE validation policies",
	}
	cmd.AddCommand(newPolicyCheckCommand(rootOpts))
	return cmd
}

func newPolicyCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Compile a policy file and list its active rules",
		Long: `Compile a CUE policy file against the policy schema.

Exit codes:
  0 - policy is valid
  1 - policy does not compile`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyCheck(cmd.OutOrStdout(), args[0], opts)
		},
	}
}

type policyCheckData struct {
	File  string   `json:"file"`
	Rules []string `json:"rules"`
}

func runPolicyCheck(w io.Writer, path string, opts *RootOptions) error {
	cfg := opts.settings()
	p, err := policy.Load(path)
	if err != nil {
		opts.logger().Debug("policy rejected", "file", path, "error", err)
		if cfg.Format == "json" {
			if werr := writeJSON(w, CLIResponse{
				Status: "error",
				Error:  &CLIError{Code: "E_POLICY_INVALID", Message: err.Error()},
			}); werr != nil {
				return werr
			}
		}
		return WrapExitError(ExitFailure, "invalid policy", err)
	}

	rules := p.Summary()
	if cfg.Format == "json" {
		return writeJSON(w, CLIResponse{Status: "ok", Data: policyCheckData{File: path, Rules: rules}})
	}

	fmt.Fprintf(w, "✓ %s\n", path)
	if len(rules) == 0 {
		fmt.Fprintln(w, "    no active rules")
	}
	for _, r := range rules {
		fmt.Fprintf(w, "    %s\n", r)
	}
	return nil
}
