package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edendb/edendb/internal/compiler"
	"github.com/edendb/edendb/internal/edl"
	"github.com/edendb/edendb/internal/output"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "edendb",
		Short: "edendb compiles EDL schema and data sources into a validated database",
	}
	root.AddCommand(compileCmd())
	return root
}

type compileFlags struct {
	output     string
	format     string
	skipChecks bool
	skipProofs bool
}

func compileCmd() *cobra.Command {
	flags := &compileFlags{}

	cmd := &cobra.Command{
		Use:   "compile [sources...]",
		Short: "Parse, validate, and materialise one or more EDL source files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the compiled artifact to this path (default: stdout)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", string(output.FormatBinary), "output format: binary or describe")
	cmd.Flags().BoolVar(&flags.skipChecks, "skip-checks", false, "skip row-local CHECK evaluation")
	cmd.Flags().BoolVar(&flags.skipProofs, "skip-proofs", false, "skip PROOF execution")

	return cmd
}

func runCompile(paths []string, flags *compileFlags) error {
	sources := make([]edl.InputSource, len(paths))
	for i, p := range paths {
		sources[i] = edl.InputSource{Path: p}
	}

	result, err := compiler.CompileWithOptions(sources, compiler.Options{
		SkipChecks: flags.skipChecks,
		SkipProofs: flags.skipProofs,
	})
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(flags.format)
	if err != nil {
		return err
	}
	bytes, err := formatter.Format(result.Schema, result.Database)
	if err != nil {
		return err
	}

	if flags.output == "" {
		_, err := os.Stdout.Write(bytes)
		return err
	}
	return os.WriteFile(flags.output, bytes, 0o644)
}
