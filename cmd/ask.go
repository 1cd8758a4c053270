package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/deepsearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepsearch/internal/runtime"
	"github.com/mohammad-safakhou/deepsearch/utils/logger"
	"github.com/spf13/cobra"
)

func askCMD(load configLoader) *cobra.Command {
	var maxSteps int
	var showTranscript bool
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is empty")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()

			agent, err := runtime.BuildAgent(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = agent.Close(context.Background())
				logger.Sync()
			}()

			out := agent.Controller.Answer(ctx, question, core.RunMaxSteps(maxSteps))
			w := cmd.OutOrStdout()
			if showTranscript {
				for i, entry := range out.Transcript {
					fmt.Fprintf(w, "--- step %d ---\n%s\n", i+1, strings.TrimSpace(entry))
				}
			}
			if out.Finalized() {
				fmt.Fprintln(w, out.Answer)
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), out.Diagnostic)
			return stopError{msg: fmt.Sprintf("run %s stopped: %s", out.RunID, out.Reason)}
		},
	}
	ask.Flags().IntVar(&maxSteps, "max-steps", 0, "override agent.max_steps for this question")
	ask.Flags().BoolVar(&showTranscript, "transcript", false, "print every step's model output")
	return ask
}
