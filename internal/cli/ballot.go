package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/trail/internal/daemon"
	"github.com/tutu-network/trail/internal/domain"
)

// ─── Ballot inspection (reads the local store) ──────────────────────────────

func init() {
	rootCmd.AddCommand(ballotCmd)
	ballotCmd.AddCommand(ballotListCmd)
	ballotCmd.AddCommand(ballotShowCmd)
	rootCmd.AddCommand(statsCmd)

	ballotListCmd.Flags().StringP("status", "s", "", "Only ballots in this status (setup, voting, closed, cancelled, archived)")
	ballotShowCmd.Flags().Bool("json", false, "Print the raw ballot record")
}

var ballotCmd = &cobra.Command{
	Use:   "ballot",
	Short: "Inspect ballots in the local ledger",
}

var ballotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ballots",
	Args:  cobra.NoArgs,
	RunE:  runBallotList,
}

func runBallotList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
		list, err := d.Engine.ListBallots(ctx, domain.BallotStatus(status))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No ballots.")
			return nil
		}
		fmt.Fprintf(out, "%-24s %-10s %-14s %-8s %10s  %s\n", "NAME", "STATUS", "METHOD", "TOKEN", "VOTERS", "ENDS")
		for _, b := range list {
			fmt.Fprintf(out, "%-24s %-10s %-14s %-8s %10d  %s\n",
				b.Name, b.Status, b.Method, b.Symbol.Code, b.TotalVoters, formatTime(b.EndTime))
		}
		return nil
	})
}

var ballotShowCmd = &cobra.Command{
	Use:   "show BALLOT_NAME",
	Short: "Show a ballot with its tallies",
	Args:  cobra.ExactArgs(1),
	RunE:  runBallotShow,
}

func runBallotShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
		b, err := d.Engine.GetBallot(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		}
		printBallot(out, b)
		return nil
	})
}

func printBallot(out io.Writer, b *domain.Ballot) {
	fmt.Fprintf(out, "Ballot:    %s (%s)\n", b.Name, b.Category)
	if b.Title != "" {
		fmt.Fprintf(out, "Title:     %s\n", b.Title)
	}
	fmt.Fprintf(out, "Publisher: %s\n", b.Publisher)
	fmt.Fprintf(out, "Status:    %s\n", b.Status)
	fmt.Fprintf(out, "Method:    %s (max %d options)\n", b.Method, b.MaxOptions)
	fmt.Fprintf(out, "Token:     %s\n", b.Symbol)
	fmt.Fprintf(out, "Window:    %s → %s\n", formatTime(b.BeginTime), formatTime(b.EndTime))
	fmt.Fprintf(out, "Votes:     %d from %d voters\n", b.TotalVotes, b.TotalVoters)

	names := make([]string, 0, len(b.Options))
	for name := range b.Options {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if b.Options[names[i]] != b.Options[names[j]] {
			return b.Options[names[i]] > b.Options[names[j]]
		}
		return names[i] < names[j]
	})
	fmt.Fprintln(out, "Options:")
	for _, name := range names {
		fmt.Fprintf(out, "  • %-20s %d\n", name, b.Options[name])
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// ─── stats ──────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the local ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			st, err := d.Engine.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:     %s\n", st.Version)
			fmt.Fprintf(out, "Registries:  %d\n", st.Registries)
			fmt.Fprintf(out, "Voters:      %d\n", st.Voters)
			fmt.Fprintf(out, "Ballots:     %d (%d open)\n", st.Ballots, st.OpenBallots)
			for _, s := range []domain.BallotStatus{domain.BallotSetup, domain.BallotVoting, domain.BallotClosed, domain.BallotCancelled, domain.BallotArchived} {
				if n := st.ByStatus[s]; n > 0 {
					fmt.Fprintf(out, "  %-10s %d\n", s, n)
				}
			}
			return nil
		})
	},
}
