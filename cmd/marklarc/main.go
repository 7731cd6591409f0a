package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/teris-io/cli"

	"github.com/drivehappy/mhc/pkg/driver"
)

var Description = strings.ReplaceAll(`
marklarc compiles a single marklar source file into a native executable: it
parses the source, lowers it to LLVM-class IR, then hands the result to the
opt/llc/gcc toolchain to optimize, assemble, and link.
`, "\n", " ")

var Marklarc = cli.New(Description).
	WithOption(cli.NewOption("input-file", "The marklar source file to compile").WithType(cli.TypeString)).
	WithOption(cli.NewOption("output-file", "Name of the produced executable (default: a.out)").WithType(cli.TypeString)).
	WithAction(Handler)

// Handler drives the compile: exit 0 on success, 2 on a front-end/codegen
// failure, 3 on an external tool failure.
func Handler(args []string, options map[string]string) int {
	inputFile, ok := options["input-file"]
	if !ok || inputFile == "" {
		fmt.Fprintln(os.Stderr, "ERROR: --input-file is required, use --help")
		return 2
	}

	if !driver.GenerateOutput(inputFile) {
		return 2
	}

	if !driver.OptimizeAndLink(options["output-file"]) {
		return 3
	}

	return 0
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--help" || arg == "-h" {
			Marklarc.Run(os.Args, os.Stdout)
			os.Exit(1)
		}
	}

	os.Exit(Marklarc.Run(os.Args, os.Stdout))
}
