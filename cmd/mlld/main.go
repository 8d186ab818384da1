// Command mlld is the thin CLI entrypoint spec.md's PACKAGE LAYOUT calls
// for: it reads one document, hands it to internal/interp.Interpret, and
// prints the assembled effect output. Grounded in the teacher's cli/main.go
// (cobra root command, --debug/--no-color flags, piped-stdin detection,
// colored error formatting) — the plan/lexer/executor pipeline there
// collapses here to one Interpret call, since parsing itself is an
// explicit non-goal of this module (spec.md §1: "The parser that
// produces the AST" is an external leaf dependency) and is left as an
// injectable internal/module.Parser with no built-in implementation.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mlld-lang/mlld/internal/debug"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/interp"
	"github.com/mlld-lang/mlld/internal/module"
	"github.com/mlld-lang/mlld/internal/security"
	"github.com/spf13/cobra"
)

func main() {
	var (
		file       string
		policyPath string
		lockPath   string
		cacheDir   string
		debugFlag  bool
		noColor    bool
	)

	rootCmd := &cobra.Command{
		Use:           "mlld [file]",
		Short:         "Interpret an mlld document",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				file = args[0]
			}
			output, err := run(file, policyPath, lockPath, cacheDir, debugFlag)
			if err != nil {
				cmd.SilenceUsage = true
				return err
			}
			_, _ = os.Stdout.WriteString(output)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&file, "file", "f", "", "path to the mlld document (defaults to stdin)")
	rootCmd.Flags().StringVar(&policyPath, "policy", "", "path to a .mlld/policy.yaml capability policy")
	rootCmd.Flags().StringVar(&lockPath, "lock-file", "", "path to mlld.lock.yaml (registry import pinning)")
	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory for the module content cache (in-memory if empty)")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "enable debug output (exec/pipeline/import/policy phases)")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored error output")

	if err := rootCmd.Execute(); err != nil {
		FormatError(os.Stderr, err, ShouldUseColor(noColor))
		os.Exit(1)
	}
}

func run(file, policyPath, lockPath, cacheDir string, debugFlag bool) (string, error) {
	source, path, err := readSource(file)
	if err != nil {
		return "", err
	}

	if parserPlugin == nil {
		return "", &CLIError{
			Message: "no mlld parser is wired into this build",
			Hint:    "cmd/mlld is a thin host over internal/interp.Interpret; an embedder must supply an internal/module.Parser implementation (spec.md §1 treats the parser as an external collaborator, not part of this module)",
		}
	}

	doc, err := parserPlugin.Parse(string(source))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}

	var policy *security.Policy
	if policyPath != "" {
		policy, err = security.LoadPolicyFile(policyPath)
		if err != nil {
			return "", err
		}
	}

	var dbg *debug.Sink
	if debugFlag {
		dbg = debug.NewSink(os.Stderr)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	fileDir := cwd
	if path != "-" && path != "" {
		fileDir = dirOf(path)
	}

	result, err := interp.Interpret(doc, interp.Options{
		PathContext: env.PathContext{
			ProjectRoot:     cwd,
			FileDirectory:   fileDir,
			ExecutionDir:    cwd,
			InvocationDir:   cwd,
			CurrentFilePath: path,
		},
		Parser:       parserPlugin,
		LockFilePath: lockPath,
		CacheDir:     cacheDir,
		Policy:       policy,
		Debug:        dbg,
	})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// parserPlugin is left nil in this build; see run's CLIError above.
// A host embedding cmd/mlld's build would set this from an init() in an
// adjacent file pulling in a concrete internal/module.Parser.
var parserPlugin module.Parser

// readSource mirrors the teacher's getInputReader: an explicit "-" or a
// piped stdin reads from os.Stdin, otherwise file is opened directly.
func readSource(file string) (source []byte, path string, err error) {
	if file == "-" {
		b, err := io.ReadAll(os.Stdin)
		return b, "-", err
	}
	if file == "" {
		if hasPipedInput() {
			b, err := io.ReadAll(os.Stdin)
			return b, "-", err
		}
		return nil, "", &CLIError{
			Message: "no input file given",
			Hint:    "pass a path with -f/--file, pipe a document on stdin, or pass \"-\" to read stdin explicitly",
		}
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", file, err)
	}
	return b, file, nil
}

func hasPipedInput() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
