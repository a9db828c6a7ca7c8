package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"checkhub/internal/store"
)

var deliveriesLimit int

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "List recent webhook deliveries",
	Long:  `Print the most recent webhook deliveries recorded in the database, newest first.`,
	RunE:  runDeliveries,
}

func init() {
	deliveriesCmd.Flags().IntVarP(&deliveriesLimit, "limit", "n", 20, "Number of deliveries to show")
}

func runDeliveries(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	deliveries, err := st.RecentDeliveries(cmd.Context(), deliveriesLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tEVENT\tSTATUS\tREPOSITORY\tDELIVERY\tERROR")
	for _, d := range deliveries {
		repo := "-"
		if d.RepositoryID != nil {
			repo = fmt.Sprintf("%d", *d.RepositoryID)
		}
		errMsg := ""
		if d.ErrorMessage != nil {
			errMsg = *d.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ReceivedAt.Local().Format(time.DateTime), d.Event, d.Status, repo, d.ID, errMsg)
	}
	return w.Flush()
}
