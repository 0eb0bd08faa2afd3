package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted chat sessions",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(cmd, "db")
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionStore, err := openSessionStore()
			if err != nil {
				return err
			}
			defer func() {
				_ = sessionStore.Close()
			}()

			sessions, err := sessionStore.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			for _, info := range sessions {
				fmt.Printf("%s\t%d messages\t%s\n", info.ID, info.MessageCount, info.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().String("db", "", "path to the sqlite session database")

	return cmd
}
