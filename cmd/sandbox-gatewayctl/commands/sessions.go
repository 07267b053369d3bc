package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
)

var (
	sessionsLimit  int
	sessionsOffset int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect session records",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions from the index",
	RunE:    runSessionsList,
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "Maximum sessions to print")
	sessionsListCmd.Flags().IntVar(&sessionsOffset, "offset", 0, "Sessions to skip before the page")
	sessionsCmd.AddCommand(sessionsListCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}

	store := sessionstore.New(objects)
	result, err := store.List(ctx, sessionsLimit, sessionsOffset)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tSTATUS\tTITLE\tLAST ACTIVITY\t")
	for _, e := range result.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", e.SessionID, e.Status, e.Title, formatMillis(e.LastActivity))
	}
	return w.Flush()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
