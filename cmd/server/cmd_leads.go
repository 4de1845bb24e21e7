package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Simplici0/meshquote/internal/config"
	"github.com/Simplici0/meshquote/internal/db"
	"github.com/Simplici0/meshquote/internal/leads"
	"github.com/Simplici0/meshquote/internal/migrations"
)

var leadsFlags struct {
	dbPath string
	limit  int
}

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List recent quote requests stored by the sqlite sink",
	Long: `Prints the newest quote requests from the SQLite database, newest first.
The database defaults to DB_PATH from the environment or .env file.`,
	Args: cobra.NoArgs,
	RunE: runLeads,
}

func init() {
	f := leadsCmd.Flags()
	f.StringVar(&leadsFlags.dbPath, "db", "", "SQLite database path (default: $DB_PATH)")
	f.IntVar(&leadsFlags.limit, "limit", 20, "Maximum number of requests to list")
}

func runLeads(cmd *cobra.Command, _ []string) error {
	if leadsFlags.limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", leadsFlags.limit)
	}

	path := leadsFlags.dbPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.DBPath
	}

	database, err := db.Open(path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrations.Up(cmd.Context(), database, zerolog.Nop()); err != nil {
		return err
	}

	recent, err := leads.NewSQLiteStore(database).Recent(cmd.Context(), leadsFlags.limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no quote requests")
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Received\tName\tEmail\tFile\tMethod/Material\tQty\tEstimate\n")
	fmt.Fprintf(w, "--------\t----\t-----\t----\t---------------\t---\t--------\n")
	for _, l := range recent {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s/%s\t%d\t%.2f\n",
			l.ReceivedAt.Local().Format(time.DateTime), l.Name, l.Email, l.Filename,
			l.Technology, l.Material, l.Quantity, l.EstimatedPrice)
	}
	return w.Flush()
}
