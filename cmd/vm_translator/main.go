package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/edmccard/nand2tetris/pkg/asm"
	"github.com/edmccard/nand2tetris/pkg/vm"
	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in 
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	// 'AsOptional()' allows to have more than one input .vm file
	WithArg(cli.NewArg("inputs", "The bytecode (.vm) file to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled binary output (.asm)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("bootstrap", "Includes bootstrap code in the final .asm file").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 || options["output"] == "" {
		fmt.Fprintf(os.Stderr, "ERROR: Not enough arguments provided, use --help\n")
		return 1
	}

	// Walks every argument (accepting both bare .vm files and directories of them, same
	// convention as the Jack Compiler) to build up the full set of translation units.
	TUs := []string{}
	for _, input := range args {
		filepath.Walk(input, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(p) != ".vm" {
				return nil
			}
			TUs = append(TUs, p)
			return nil
		})
	}

	if len(TUs) < 1 {
		fmt.Fprintf(os.Stderr, "ERROR: No '.vm' input files found\n")
		return 1
	}

	// Allocates a 'vm.Program' struct to save all the parsed translation unit
	// (the .vm files) that will be parsed and lowered independently and then
	// sent to the codegen phases (that will create a monolithic compiled output).
	program := vm.Program{}

	// For every file provided by the user we do the following things
	for _, input := range TUs {
		content, err := os.ReadFile(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to open input file: %s\n", err)
			return 1
		}

		// Instantiate a parser for the Vm program
		parser := vm.NewParser(bytes.NewReader(content))
		// Removes directory and file extension so the module is keyed by its bare name, the
		// same name the lowerer uses as the prefix for that module's 'static' segment labels.
		filename, extension := path.Base(input), path.Ext(input)
		// Parses the input file content and extract an AST (as a 'vm.Module') from it.
		program[strings.TrimSuffix(filename, extension)], err = parser.Parse()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'parsing' pass: %s\n", err)
			return 1
		}
	}

	// Instantiate a lowerer to convert the program from Vm to Asm
	lowerer := vm.NewLowerer(program)
	// Lowers the vm.Program to an in-memory/IR representation of its Asm counterpart 'asm.Program'.
	asmProgram, err := lowerer.Lowerer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return 1
	}

	// The bootstrap preamble (sets SP then jumps to Sys.init) is required whenever translating
	// more than one module, since only then does a well defined entrypoint exist; it is also
	// emitted for a single module when the user explicitly opts in with '--bootstrap'.
	_, bootstrapRequested := options["bootstrap"]
	if bootstrapRequested || len(TUs) > 1 {
		asmProgram = append(vm.Bootstrap(), asmProgram...)
	}

	// Now, instantiates a code generator for the Asm (compiled) program
	codegen := asm.NewCodeGenerator(asmProgram)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return 1
	}

	// Writes through a temp file in the output's own directory, renamed into place only once every
	// line has been written, so a crash or a disk-full mid-write never leaves a truncated .asm file.
	tmp, err := os.CreateTemp(filepath.Dir(options["output"]), ".vmt-*.tmp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to open output file: %s\n", err)
		return 1
	}
	defer os.Remove(tmp.Name())

	for _, comp := range compiled {
		line := fmt.Sprintf("%s\n", comp)
		if _, err := tmp.Write([]byte(line)); err != nil {
			tmp.Close()
			fmt.Fprintf(os.Stderr, "ERROR: Unable to write output file: %s\n", err)
			return 1
		}
	}

	if err := tmp.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to write output file: %s\n", err)
		return 1
	}
	if err := os.Rename(tmp.Name(), options["output"]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to finalize output file: %s\n", err)
		return 1
	}

	return 0
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
