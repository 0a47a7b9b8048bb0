package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/plcsim/internal/program"
)

// ValidationResult is the validate command's JSON payload.
type ValidationResult struct {
	Valid    bool          `json:"valid"`
	Program  program.Stats `json:"program"`
	Problems []string      `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program.cue>",
		Short: "Check a ladder program without running it",
		Long: `Compile a CUE ladder program and check every rung against its points.

A rung that references an unknown tag, or whose output is not a digital
output, would be disabled by the engine. validate reports such rungs as
problems and exits 1.

Exit codes:
  0 - Program valid
  1 - Program failed to compile or has problems
  2 - Program file not found`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	prog, err := program.Load(path)
	if err != nil {
		_ = formatter.Error(ErrCodeProgram, err.Error(), nil)
		if errors.Is(err, fs.ErrNotExist) {
			return WrapExitError(ExitCommandError, "program not found", err)
		}
		return WrapExitError(ExitFailure, "program failed to compile", err)
	}
	formatter.VerboseLog("compiled %s from %s", prog.Name, path)

	problems, err := prog.Check()
	if err != nil {
		_ = formatter.Error(ErrCodeProgram, err.Error(), nil)
		return WrapExitError(ExitFailure, "program points are invalid", err)
	}

	result := ValidationResult{Valid: len(problems) == 0, Program: prog.Stats()}
	for _, p := range problems {
		result.Problems = append(result.Problems, p.Error())
	}

	if opts.Format == "json" {
		return outputValidateJSON(formatter, result)
	}
	return outputValidateText(formatter, result)
}

func outputValidateJSON(f *OutputFormatter, result ValidationResult) error {
	if result.Valid {
		return f.Success(result)
	}

	response := CLIResponse{
		Status: "error",
		Data:   result,
		Error: &CLIError{
			Code:    ErrCodeProblems,
			Message: result.Problems[0],
		},
	}
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("program has %d problem(s)", len(result.Problems)))
}

func outputValidateText(f *OutputFormatter, result ValidationResult) error {
	s := result.Program
	fmt.Fprintf(f.Writer, "Program: %s\n", s.Name)
	fmt.Fprintf(f.Writer, "  %d digital inputs, %d digital outputs, %d analog inputs, %d analog outputs (%d critical)\n",
		s.DigitalInputs, s.DigitalOutputs, s.AnalogInputs, s.AnalogOutputs, s.Critical)
	fmt.Fprintf(f.Writer, "  %d rungs\n", s.Rungs)

	if result.Valid {
		fmt.Fprintln(f.Writer, "✓ Program valid")
		return nil
	}

	fmt.Fprintf(f.Writer, "✗ %d problem(s)\n", len(result.Problems))
	for _, p := range result.Problems {
		fmt.Fprintf(f.Writer, "  %s\n", p)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("program has %d problem(s)", len(result.Problems)))
}
