package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
)

func NewMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memory",
		Aliases: []string{"mem"},
		Short:   "Inspect the agent's memories",
	}

	cmd.AddCommand(
		NewMemoryListCmd(a),
		NewMemorySearchCmd(a),
	)
	return cmd
}

func NewMemoryListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent memories",
		Long:    `List the most recent long-term memories, or the short-term log with --short.`,
		Args:    cobra.NoArgs,
		RunE:    makeMemoryListRunner(a),
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of memories")
	cmd.Flags().Bool("short", false, "List short-term memories instead")
	return cmd
}

type memoryView struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Significance int       `json:"significance,omitempty"`
	Similarity   float64   `json:"similarity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func makeMemoryListRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		short, _ := cmd.Flags().GetBool("short")

		store, _, err := a.store(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		var views []memoryView
		if short {
			mems, err := store.RecentShortTerm(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list short-term memories: %w", err)
			}
			for _, m := range mems {
				views = append(views, memoryView{ID: m.ID, Content: m.Content, CreatedAt: m.CreatedAt})
			}
		} else {
			mems, err := store.RecentLongTerm(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list long-term memories: %w", err)
			}
			for _, m := range mems {
				views = append(views, memoryView{ID: m.ID, Content: m.Content, Significance: m.Significance, CreatedAt: m.CreatedAt})
			}
		}

		return outputMemories(cmd, views)
	}
}

func NewMemorySearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search long-term memories by meaning",
		Long:  `Embed the query and list the long-term memories closest to it.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeMemorySearchRunner(a),
	}

	cmd.Flags().IntP("limit", "n", 5, "Maximum number of results")
	return cmd
}

func makeMemorySearchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		ag, release, err := a.agent(cmd, internal.AgentOptions{SkipValidation: true})
		if err != nil {
			return err
		}
		defer release()

		results, err := ag.Search(cmd.Context(), query, limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		views := make([]memoryView, 0, len(results))
		for _, r := range results {
			views = append(views, memoryView{
				ID:           r.Memory.ID,
				Content:      r.Memory.Content,
				Significance: r.Memory.Significance,
				Similarity:   r.Score,
				CreatedAt:    r.Memory.CreatedAt,
			})
		}
		return outputMemories(cmd, views)
	}
}

func outputMemories(cmd *cobra.Command, views []memoryView) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		if views == nil {
			views = []memoryView{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No memories found")
		return nil
	}

	for _, v := range views {
		prefix := v.CreatedAt.Format(time.DateTime)
		switch {
		case v.Similarity != 0:
			prefix = fmt.Sprintf("%.3f", v.Similarity)
		case v.Significance != 0:
			prefix += fmt.Sprintf(" [%d]", v.Significance)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", prefix, v.Content)
	}
	return nil
}
