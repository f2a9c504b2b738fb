package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/stream"
)

const (
	ansiClearLine = "\r\033[K"
	ansiUp        = "\033[%dA"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var sync, attach bool
	cmd := &cobra.Command{
		Use:   "generate <word>",
		Short: "Generate a pattern for one word and follow its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := ctx.backendClient()
			if err != nil {
				return err
			}
			word := strings.ToLower(strings.TrimSpace(args[0]))
			out := cmd.OutOrStdout()

			if sync {
				p, err := backend.GenerateWord(cmd.Context(), word)
				if err != nil {
					return fmt.Errorf("generation failed: %w", err)
				}
				fmt.Fprintf(out, "pattern %s created for %s\n", p.ID, p.Word)
				if p.Voicing != "" {
					fmt.Fprintln(out, truncate(p.Voicing, 120))
				}
				return nil
			}

			open := backend.StreamGenerate
			if attach {
				open = backend.StreamWord
			}
			return followGeneration(cmd.Context(), ctx.logger, out, word, func(c context.Context) (io.ReadCloser, error) {
				return open(c, word)
			})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "Wait for the finished pattern without streaming progress")
	cmd.Flags().BoolVar(&attach, "attach", false, "Follow a generation that is already running for the word")
	cmd.MarkFlagsMutuallyExclusive("sync", "attach")
	return cmd
}

// followGeneration читает поток стадий и печатает прогресс до завершения.
func followGeneration(ctx context.Context, log *zap.Logger, out io.Writer, word string, open stream.Opener) error {
	live := isTerminal(out)
	progress := generation.NewProgress(word)
	printed := 0
	var streamErr error
	consumer := stream.NewConsumer(log)
	_ = consumer.Run(ctx, open,
		stream.Handlers{
			OnUpdate: func(ev stream.Event) {
				next := generation.ReduceProgress(progress, ev)
				if live {
					printed = redrawProgress(out, next, printed)
				} else {
					printStepChanges(out, progress, next)
				}
				progress = next
			},
			OnError: func(err error) { streamErr = err },
		},
	)
	if live {
		redrawProgress(out, progress, printed)
	}
	if streamErr != nil {
		var se *stream.StreamError
		if errors.As(streamErr, &se) {
			return fmt.Errorf("generation failed: %s", se.Message)
		}
		return streamErr
	}
	if progress.PatternID != "" {
		fmt.Fprintf(out, "pattern %s created (%d/%d steps)\n", progress.PatternID, progress.Completed(), len(progress.Steps))
	} else {
		fmt.Fprintf(out, "generation finished (%d/%d steps)\n", progress.Completed(), len(progress.Steps))
	}
	return nil
}

func stepMark(s generation.ProgressStatus) string {
	switch s {
	case generation.ProgressComplete:
		return "✓"
	case generation.ProgressInProgress:
		return "…"
	case generation.ProgressError:
		return "✗"
	default:
		return "·"
	}
}

// redrawProgress перерисовывает список стадий поверх предыдущего вывода.
func redrawProgress(w io.Writer, p generation.Progress, printed int) int {
	if printed > 0 {
		fmt.Fprintf(w, ansiUp, printed)
	}
	lines := progressLines(p)
	for _, l := range lines {
		fmt.Fprint(w, ansiClearLine+l+"\n")
	}
	return len(lines)
}

func progressLines(p generation.Progress) []string {
	lines := []string{p.Word}
	for _, s := range p.Steps {
		lines = append(lines, fmt.Sprintf("  %s %s", stepMark(s.Status), s.Label))
	}
	if p.Err != "" {
		lines = append(lines, "  error: "+p.Err)
	}
	return lines
}

// printStepChanges для не-терминала: одна строка на каждую смену статуса стадии.
func printStepChanges(w io.Writer, prev, next generation.Progress) {
	for i, s := range next.Steps {
		if i < len(prev.Steps) && prev.Steps[i].Status == s.Status {
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", next.Word, s.Label, s.Status)
	}
}
