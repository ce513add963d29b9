package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSessionsCommand(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved sessions, most recent first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := global.store()
				if err != nil {
					return err
				}
				defer store.Close()

				sessions, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPROVIDER\tMODEL\tMESSAGES\tUPDATED")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Provider, s.Model, s.MessageCount,
						time.Time(s.UpdatedAt).Local().Format(time.DateTime))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "delete ID...",
			Short: "Delete saved sessions",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids := make([]uuid.UUID, 0, len(args))
				for _, arg := range args {
					id, err := uuid.Parse(arg)
					if err != nil {
						return fmt.Errorf("session id %q: %w", arg, err)
					}
					ids = append(ids, id)
				}

				store, err := global.store()
				if err != nil {
					return err
				}
				defer store.Close()
				for _, id := range ids {
					if err := store.Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
				}
				return nil
			},
		},
	)
	return cmd
}
