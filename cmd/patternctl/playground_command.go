package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func newPlaygroundCommand(ctx *commandContext) *cobra.Command {
	var (
		kind     string
		template string
		system   string
		vars     map[string]string
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "playground <word>",
		Short: "Try a text or image prompt without saving a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "text" && kind != "image" {
				return fmt.Errorf("unknown playground type %q: want text or image", kind)
			}
			backend, err := ctx.backendClient()
			if err != nil {
				return err
			}
			word := strings.ToLower(strings.TrimSpace(args[0]))
			inputs := map[string]string{"word": word}
			for k, v := range vars {
				inputs[k] = v
			}
			req := client.PlaygroundRequest{
				Type:         kind,
				Word:         word,
				Template:     models.RenderTemplate(template, inputs),
				SystemPrompt: system,
				Inputs:       inputs,
			}
			ex, err := backend.PlaygroundTest(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("playground failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, string(ex.Response))
				return nil
			}
			fmt.Fprintln(out, ex.Output)
			fmt.Fprintf(out, "(%s, %dms)\n", kind, ex.Duration.Milliseconds())
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "text", "Prompt type: text or image")
	cmd.Flags().StringVar(&template, "template", "", "Prompt template; {{word}} and --var names are filled in")
	cmd.Flags().StringVar(&system, "system", "", "System prompt for text runs")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "Extra template variables, key=value")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw backend response")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}
