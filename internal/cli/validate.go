package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Files    int                        `json:"files"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check interfaces, configs and scripts without running them",
		Long: `Check files without contacting a replica:

  *.did            parse and validate the Candid interface
  *.cue, <dir>     load the configuration and every interface it names
  anything else    parse as a script`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("not found: %s", path), nil)
		}
		formatter.VerboseLog("Validating %s", path)
		errs, warnings := validatePath(path)
		result.Files++
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validatePath checks one file or config directory.
func validatePath(path string) ([]compiler.ValidationError, []compiler.CycleWarning) {
	info, _ := os.Stat(path)
	switch {
	case info != nil && info.IsDir(), filepath.Ext(path) == ".cue":
		cfg, err := LoadConfig(path)
		if err != nil {
			return []compiler.ValidationError{loadValidationError(path, err)}, nil
		}
		if _, err := cfg.Interfaces(); err != nil {
			return []compiler.ValidationError{loadValidationError(path, err)}, nil
		}
		return nil, nil
	case filepath.Ext(path) == ".did":
		return validateDID(path)
	default:
		src, err := os.ReadFile(path)
		if err != nil {
			return []compiler.ValidationError{{Field: path, Message: err.Error(), Code: ErrCodeLoadFailed}}, nil
		}
		if _, err := compiler.ParseScript(string(src)); err != nil {
			return []compiler.ValidationError{{Field: path, Message: err.Error(), Code: ErrCodeGeneric}}, nil
		}
		return nil, nil
	}
}

func validateDID(path string) ([]compiler.ValidationError, []compiler.CycleWarning) {
	src, err := os.ReadFile(path)
	if err != nil {
		return []compiler.ValidationError{{Field: path, Message: err.Error(), Code: ErrCodeLoadFailed}}, nil
	}
	iface, err := compiler.ParseDID(string(src))
	if err != nil {
		return didErrors(path, err), nil
	}
	var warnings []compiler.CycleWarning
	for _, w := range compiler.AnalyzeTypeCycles(iface.Env) {
		if w.Level != "error" {
			warnings = append(warnings, w)
		}
	}
	return nil, warnings
}

// didErrors unpacks the validation errors joined by ParseDID. Syntax
// errors become a single generic entry.
func didErrors(path string, err error) []compiler.ValidationError {
	var out []compiler.ValidationError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var ve compiler.ValidationError
			if errors.As(e, &ve) {
				ve.Field = path + ": " + ve.Field
				out = append(out, ve)
			}
		}
	}
	if len(out) == 0 {
		out = append(out, compiler.ValidationError{Field: path, Message: err.Error(), Code: ErrCodeGeneric})
	}
	return out
}

func loadValidationError(path string, err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{Field: path, Message: loadErr.Error(), Code: loadErr.Code}
	}
	return compiler.ValidationError{Field: path, Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	result.Valid = true
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "note: %s\n", w.Message)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d file(s) valid\n", result.Files)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Missing inputs are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "%s\n  %s: %s\n\n", err.Field, err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
