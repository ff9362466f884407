package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"school-identity-onboarding/internal/importfile"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/template"
	"school-identity-onboarding/pkg/errors"

	"github.com/spf13/pflag"
)

// exitError carries a process exit code without printing anything more.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string, out io.Writer) error {
	logger.Init("warn", "console")

	if len(args) == 0 {
		printUsage()
		return exitError{code: 2}
	}

	switch args[0] {
	case "validate":
		return runValidate(args[1:], out)
	case "template":
		return runTemplate(args[1:], out)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runValidate(args []string, out io.Writer) error {
	var roleFlag string

	flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	flagSet.StringVarP(&roleFlag, "role", "r", "", "role the file imports: student, parent, teacher, admin_staff")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	role, err := model.ParseRole(roleFlag)
	if err != nil {
		return fmt.Errorf("--role: %w", err)
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("expected exactly one file, got %d", flagSet.NArg())
	}

	path := flagSet.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	file := model.ImportFile{Name: filepath.Base(path), Data: data}
	report := importfile.NewValidator().Validate(context.Background(), file, role)
	printReport(out, report)

	if !report.OK() {
		return exitError{code: 1}
	}
	return nil
}

func printReport(out io.Writer, report importfile.Report) {
	fmt.Fprintf(out, "%s (%s): %d rows\n", report.FileName, report.Role, report.Rows)

	if errors.Is(report.Err, errors.ErrFileRead) {
		fmt.Fprintln(out, "file is unreadable or empty")
		return
	}

	if report.Header.OK {
		fmt.Fprintln(out, "header: ok")
	} else {
		fmt.Fprintln(out, "header: mismatch")
		for _, col := range report.Header.Missing {
			fmt.Fprintf(out, "  missing column: %s\n", col)
		}
		for _, col := range report.Header.Unknown {
			fmt.Fprintf(out, "  unknown column: %s\n", col)
		}
		return
	}

	if len(report.RowErrors) == 0 {
		fmt.Fprintln(out, "rows: ok")
		return
	}
	fmt.Fprintf(out, "rows: %d errors\n", len(report.RowErrors))
	for _, e := range report.RowErrors {
		fmt.Fprintf(out, "  line %d: %s\n", e.Line, e.Message)
	}
}

func runTemplate(args []string, out io.Writer) error {
	var roleFlag, format, output string

	flagSet := pflag.NewFlagSet("template", pflag.ContinueOnError)
	flagSet.StringVarP(&roleFlag, "role", "r", "", "role of the template")
	flagSet.StringVarP(&format, "format", "f", template.FormatCSV, "csv or xlsx")
	flagSet.StringVarP(&output, "output", "o", "", "write to this file instead of the default name; - for stdout")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	role, err := model.ParseRole(roleFlag)
	if err != nil {
		return fmt.Errorf("--role: %w", err)
	}

	tpl, err := template.NewGenerator(nil).Synthesize(role, format)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err := out.Write(tpl.Data)
		return err
	}
	if output == "" {
		output = tpl.Filename
	}
	if err := os.WriteFile(output, tpl.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", output)
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `importctl checks identity import files offline.

Usage:
  importctl validate --role ROLE FILE
  importctl template --role ROLE [--format csv|xlsx] [-o FILE]

Roles: student, parent, teacher, admin_staff

validate exits with status 1 when the file would be rejected.
`)
}
