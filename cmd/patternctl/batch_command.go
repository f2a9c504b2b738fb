package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "batch <word>[,<word>...]",
		Short: "Generate patterns for several words one after another",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := ctx.backendClient()
			if err != nil {
				return err
			}
			input := strings.Join(args, ",")
			if file != "" {
				data, err := readInput(cmd, file)
				if err != nil {
					return err
				}
				input += "," + data
			}
			words := generation.ParseWords(input)
			if len(words) == 0 {
				return generation.ErrNoWords
			}

			out := cmd.OutOrStdout()
			runner := generation.NewRunner(backend, ctx.logger,
				generation.WithWordTimeout(ctx.config.VoiceLab.WordTimeout),
				generation.WithEntryDone(func(e generation.LogEntry) {
					fmt.Fprintf(out, "%-20s %s %s\n", e.Word, e.Status, e.Message)
				}),
			)
			b := generation.NewBatch(words)
			runner.Run(cmd.Context(), b)

			snap := b.Snapshot()
			fmt.Fprintln(out, renderBatch(snap))
			counts := snap.Counts()
			if counts[generation.StatusError] > 0 {
				return fmt.Errorf("%d of %d words failed", counts[generation.StatusError], len(snap.Entries))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read words from a file (- for stdin)")
	return cmd
}

func renderBatch(s generation.Snapshot) string {
	rows := make([][]string, 0, len(s.Entries))
	for i, e := range s.Entries {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			e.Word,
			string(e.Status),
			e.PatternID,
			fmt.Sprint(len(e.CompletedSteps)),
			truncate(e.Message, 60),
		})
	}
	return renderTable(
		[]string{"#", "Word", "Status", "Pattern", "Steps", "Message"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
