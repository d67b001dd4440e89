package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes, stable for scripting: 2 for validation failures, 3 for a
// missing backing store, 1 for everything else.
const (
	exitOK         = 0
	exitError      = 1
	exitValidation = 2
	exitDependency = 3
)

func main() {
	root := &cobra.Command{
		Use:   "folio-engine",
		Short: "Evidence-based discovery over rare-book MARC catalogs",
		Long: `folio-engine turns MARC XML catalog exports into a queryable index and
answers researcher questions about it. Every answer traces back to
records in the index; the language model only translates questions into
structured query plans.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newParseCmd(),
		newNormalizeCmd(),
		newIndexCmd(),
		newQueryCmd(),
		newServeCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "folio-engine: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrPlanInvalid),
		errors.Is(err, apperrors.ErrPlanUnsupported):
		return exitValidation
	case errors.Is(err, apperrors.ErrDependencyNotReady):
		return exitDependency
	default:
		return exitError
	}
}
