package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read words: %w", err)
	}
	return string(data), nil
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var query string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List generated patterns, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := ctx.backendClient()
			if err != nil {
				return err
			}
			patterns, err := backend.History(cmd.Context())
			if err != nil {
				return err
			}
			models.SortNewestFirst(patterns)
			patterns = models.FilterPatterns(patterns, query)
			if limit > 0 && len(patterns) > limit {
				patterns = patterns[:limit]
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(patterns))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter by word")
	return cmd
}

func renderHistory(patterns []models.Pattern) string {
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		var fields []string
		for _, f := range models.PatternFields {
			if p.HasField(f) {
				fields = append(fields, f)
			}
		}
		created := ""
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{p.ID, p.Word, created, strings.Join(fields, ",")})
	}
	return renderTable([]string{"ID", "Word", "Created", "Fields"}, rows, nil)
}

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List prompt slugs and their live versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := ctx.backendClient()
			if err != nil {
				return err
			}
			prompts, err := backend.ListPrompts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPrompts(models.GroupPrompts(prompts)))
			return nil
		},
	}
}

func renderPrompts(groups []models.PromptGroup) string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		live := "-"
		tag := ""
		if g.Active.ID != "" {
			live = fmt.Sprintf("v%d", g.Active.Version)
			tag = g.Active.VariantTag()
		}
		rows = append(rows, []string{g.Slug, live, fmt.Sprint(g.Versions()), tag})
	}
	return renderTable([]string{"Slug", "Live", "Versions", "Variant"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
}

func newLineageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage",
		Short: "Show the pattern branching tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := ctx.backendClient()
			if err != nil {
				return err
			}
			tree, err := backend.LineageTree(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderLineage(tree))
			fmt.Fprintf(out, "%d branches, max generation %d\n", tree.TotalBranches, tree.MaxGeneration)
			return nil
		},
	}
}

func renderLineage(tree models.LineageTree) string {
	var rows [][]string
	tree.Walk(func(n *models.LineageNode, depth int) bool {
		name := n.Word
		if name == "" {
			name = n.ID
		}
		rows = append(rows, []string{
			strings.Repeat("  ", depth) + name,
			n.ID,
			n.BranchPoint,
			fmt.Sprint(n.Generation),
			fmt.Sprint(n.UserLikes),
		})
		return true
	})
	return renderTable([]string{"Pattern", "ID", "Branched at", "Gen", "Likes"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}
