// Package driver glues the front end and code generator to the external
// optimizing backend. It mirrors original_source/src/lib/driver.cpp's
// generateOutput/optimizeAndLink pair almost line for line: same fixed
// filenames, same three-stage opt/llc/gcc shell-out, same fallback output
// name, translated into the CLI layer's exit codes: 0 on success, 2 for a
// front-end/codegen failure, 3 for an external tool failure.
package driver

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"

	"github.com/drivehappy/mhc/pkg/ast"
	"github.com/drivehappy/mhc/pkg/codegen"
	"github.com/drivehappy/mhc/pkg/irbuilder"
	"github.com/drivehappy/mhc/pkg/parser"
)

const (
	bitcodeFile    = "output.bc"
	optimizedFile  = "output_opt.bc"
	objectFile     = "output.o"
	defaultExeName = "a.out"
)

var (
	errColor  = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

// GenerateOutput parses inputPath, generates IR for every function it
// declares, verifies the resulting module, and writes it to bitcodeFile.
// Reports false (front-end/codegen failure, exit code 2 at the CLI layer)
// on any error encountered along the way.
func GenerateOutput(inputPath string) bool {
	source, err := os.Open(inputPath)
	if err != nil {
		errColor.Fprintf(os.Stderr, "cannot open input file %q: %s\n", inputPath, err)
		return false
	}
	defer source.Close()

	p := parser.NewParser(source)
	program, err := p.Parse()
	if err != nil {
		errColor.Fprintf(os.Stderr, "failed to parse source file: %s\n", err)
		return false
	}

	if err := generate(program); err != nil {
		errColor.Fprintf(os.Stderr, "%s\n", err)
		return false
	}

	return true
}

func generate(program *ast.Program) error {
	module := irbuilder.NewModule("")

	if err := codegen.Generate(module, program); err != nil {
		return fmt.Errorf("error generating code: %w", err)
	}

	if err := module.Verify(); err != nil {
		return fmt.Errorf("failed to verify generated module: %w", err)
	}

	if err := module.WriteIR(bitcodeFile); err != nil {
		return fmt.Errorf("error writing module to %q: %w", bitcodeFile, err)
	}

	return nil
}

// OptimizeAndLink shells out to opt, llc, and gcc in sequence with the same
// fixed flags and filenames original_source/src/lib/driver.cpp uses. Returns
// false (exit code 3 at the CLI layer) on the first non-zero exit from any
// of the three.
func OptimizeAndLink(exeName string) bool {
	if exeName == "" {
		exeName = defaultExeName
	}

	steps := []struct {
		name string
		args []string
	}{
		{"opt", []string{"-filetype=obj", "-o", optimizedFile, "-O3", "-loop-unroll", "-loop-vectorize", "-slp-vectorizer", bitcodeFile}},
		{"llc", []string{"-filetype=obj", "-o", objectFile, optimizedFile}},
		{"gcc", []string{"-o", exeName, objectFile}},
	}

	for _, step := range steps {
		cmd := exec.Command(step.name, step.args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr

		infoColor.Fprintf(os.Stdout, "running: %s %v\n", step.name, step.args)
		if err := cmd.Run(); err != nil {
			errColor.Fprintf(os.Stderr, "error running %q: %s\n", step.name, err)
			return false
		}
	}

	return true
}
