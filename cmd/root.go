package main

import (
	"fmt"
	"os"

	"github.com/mohammad-safakhou/deepsearch/config"
	"github.com/mohammad-safakhou/deepsearch/internal/runtime"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "deepsearch",
		Short:         "Answer questions with a search-augmented reasoning loop",
		Version:       runtime.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.yaml or ./config.yaml)")

	load := func() (*config.Config, error) { return config.LoadConfig(cfgPath) }
	root.AddCommand(serveCMD(load), askCMD(load), tokenCMD(load))
	return root
}

type configLoader func() (*config.Config, error)

// stopError marks a run that ended without an answer.
type stopError struct{ msg string }

func (e stopError) Error() string { return e.msg }

func exitCode(err error) int {
	if _, ok := err.(stopError); ok {
		return 2
	}
	return 1
}
