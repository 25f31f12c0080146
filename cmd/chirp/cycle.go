package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
)

func NewCycleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single pipeline cycle",
		Long:  `Run one pass of the pipeline: gather context, remember, write, score, publish and reply.`,
		Args:  cobra.NoArgs,
		RunE:  makeCycleRunner(a),
	}
}

func makeCycleRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ag, release, err := a.agent(cmd, internal.AgentOptions{})
		if err != nil {
			return err
		}
		defer release()

		report := ag.Pipeline.RunCycle(cmd.Context())

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(newReportView(report))
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	}
}

type stepErrorView struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

type reportView struct {
	StartedAt     time.Time       `json:"started_at"`
	Took          string          `json:"took"`
	RecentPosts   int             `json:"recent_posts"`
	Notifications int             `json:"notifications"`
	Unseen        int             `json:"unseen"`
	ShortTerm     string          `json:"short_term_memory"`
	Retrieved     int             `json:"retrieved"`
	Content       string          `json:"content,omitempty"`
	Score         *int            `json:"score,omitempty"`
	Stored        bool            `json:"stored"`
	PublishedID   string          `json:"published_id,omitempty"`
	Unpublished   string          `json:"unpublished,omitempty"`
	Replies       int             `json:"replies"`
	Transfers     int             `json:"transfers"`
	Follows       []string        `json:"follows,omitempty"`
	Errors        []stepErrorView `json:"errors,omitempty"`
}

func newReportView(r internal.CycleReport) reportView {
	v := reportView{
		StartedAt:     r.StartedAt,
		Took:          r.FinishedAt.Sub(r.StartedAt).String(),
		RecentPosts:   r.RecentPosts,
		Notifications: r.Notifications,
		Unseen:        r.Unseen,
		ShortTerm:     r.ShortTermMemory,
		Retrieved:     r.Retrieved,
		Content:       r.Content,
		Stored:        r.Stored,
		PublishedID:   r.PublishedID,
		Unpublished:   r.Unpublished,
		Replies:       r.Replies,
		Transfers:     r.Transfers,
		Follows:       r.Follows,
	}
	if r.Score != internal.NoScore {
		score := r.Score
		v.Score = &score
	}
	for _, e := range r.Errors {
		v.Errors = append(v.Errors, stepErrorView{Step: e.Step, Error: e.Err.Error()})
	}
	return v
}

func printReport(w io.Writer, r internal.CycleReport) {
	fmt.Fprintf(w, "context:   %d own posts, %d notifications (%d unseen)\n", r.RecentPosts, r.Notifications, r.Unseen)
	fmt.Fprintf(w, "memory:    %s\n", r.ShortTermMemory)
	fmt.Fprintf(w, "retrieved: %d long-term memories\n", r.Retrieved)
	if r.Content != "" {
		fmt.Fprintf(w, "content:   %s\n", r.Content)
	}
	if r.Score != internal.NoScore {
		fmt.Fprintf(w, "score:     %d (stored: %t)\n", r.Score, r.Stored)
	}
	if r.PublishedID != "" {
		fmt.Fprintf(w, "published: %s\n", r.PublishedID)
	} else {
		fmt.Fprintf(w, "held back: %s\n", r.Unpublished)
	}
	fmt.Fprintf(w, "replies:   %d, transfers: %d, follows: %d\n", r.Replies, r.Transfers, len(r.Follows))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "failed:    %s\n", e)
	}
}
