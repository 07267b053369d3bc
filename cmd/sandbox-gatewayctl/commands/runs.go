package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/sandbox-gateway/internal/runstore"
)

var (
	runsSessionID string
	runsStatus    string
	runsLimit     int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run records",
}

var runsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List runs from the index, optionally filtered",
	RunE:    runRunsList,
}

func init() {
	runsListCmd.Flags().StringVar(&runsSessionID, "session-id", "", "Restrict to one session")
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "Restrict to one status (started|running|completed|failed)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 50, "Maximum runs to print")
	runsCmd.AddCommand(runsListCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}

	store := runstore.New(objects)
	result, err := store.ListRuns(ctx, runstore.ListFilter{
		SessionID: runsSessionID,
		Status:    runstore.Status(runsStatus),
		Limit:     runsLimit,
	})
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSESSION ID\tSTATUS\tTITLE\tSTARTED AT\t")
	for _, e := range result.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", e.RunID, e.SessionID, e.Status, e.Title, formatMillis(e.StartedAt))
	}
	return w.Flush()
}
