// Package classlift resolves a class on a classpath, parses it, and
// lifts every method into its basic-block IR.
//
// A single-binary front end that loads input, runs it through the core
// package, and reports failure with a non-zero exit code. Its option
// surface (classpath, help, verbose dump) is built on cobra+pflag. Kept
// as its own package (rather than package main) so the module-root
// main.go can import and execute it directly.
package classlift

import (
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"classlift/internal/ir"
	"classlift/internal/program"
)

// NewRootCommand builds the classlift cobra command tree.
func NewRootCommand() *cobra.Command {
	var classpathFlag string
	var verbose bool
	var dumpBlocks bool

	cmd := &cobra.Command{
		Use:   "classlift <class-name-dotted>",
		Short: "Parse a JVM class file and lift its bytecode into basic-block IR",
		Args:  cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], classpathFlag, verbose, dumpBlocks)
		},
	}

	cmd.Flags().StringVarP(&classpathFlag, "classpath", "c", ".", "colon-separated search path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "structured debug logging")
	cmd.Flags().BoolVar(&dumpBlocks, "dump-blocks", false, "print the lifted block map for every method")

	return cmd
}

func run(className, classpathArg string, verbose, dumpBlocks bool) error {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	runID := uuid.New()
	entry := log.WithField("run_id", runID.String())

	cp := newClasspath(strings.Split(classpathArg, ":"))
	raw, err := cp.Resolve(className)
	if err != nil {
		return errors.Wrapf(err, "resolving %s on classpath %q", className, classpathArg)
	}

	lifted, err := program.LiftClass(raw, entry)
	if err != nil {
		return errors.Wrapf(err, "lifting %s", className)
	}

	failures := 0
	for _, m := range lifted.Methods {
		if m.Err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "%s.%s%s: %s\n", lifted.ThisClass, m.Name, m.Descriptor, m.Err)
			continue
		}
		if dumpBlocks {
			dumpMethodBlocks(lifted.ThisClass, m.Name, m.Descriptor, m.Blocks)
		}
	}

	if failures > 0 {
		return errors.Errorf("%d of %d methods failed to lift", failures, len(lifted.Methods))
	}
	return nil
}

func dumpMethodBlocks(className, methodName, descriptor string, blocks *ir.BlockMap) {
	fmt.Printf("%s.%s%s\n", className, methodName, descriptor)
	for _, off := range blocks.Offsets() {
		b := blocks.Blocks[off]
		fmt.Printf("  block %d (preds=%v)\n", b.Start, b.Predecessors())
		for i, instr := range b.Instructions {
			fmt.Printf("    %d: %s\n", i, spew.Sdump(instr))
		}
		if b.HasTerminator {
			fmt.Printf("    term: %s\n", spew.Sdump(b.Terminator))
		}
	}
}
