package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewPostsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts [username]",
		Short: "List stored posts",
		Long:  `List the newest stored posts of an author, by default the agent's own account.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  makePostsRunner(a),
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of posts")
	return cmd
}

func makePostsRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, cfg, err := a.store(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		username := cfg.Account.Username
		if len(args) > 0 {
			username = strings.TrimPrefix(args[0], "@")
		}

		posts, err := store.RecentPostsBy(cmd.Context(), username, limit)
		if err != nil {
			return fmt.Errorf("list posts: %w", err)
		}

		if asJSON {
			data := make([]map[string]any, 0, len(posts))
			for _, p := range posts {
				data = append(data, map[string]any{
					"id":          p.ID,
					"external_id": p.ExternalID,
					"author":      p.AuthorUsername,
					"type":        p.Type,
					"parent_id":   p.ParentID,
					"content":     p.Content,
					"created_at":  p.CreatedAt,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		}

		if len(posts) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No posts by @%s\n", username)
			return nil
		}
		for _, p := range posts {
			marker := " "
			if p.IsReply() {
				marker = "↳"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", p.CreatedAt.Format(time.DateTime), marker, p.Content)
		}
		return nil
	}
}
