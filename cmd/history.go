package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roberta039/Gym-Trainer/adapters/store"
	"github.com/roberta039/Gym-Trainer/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or delete stored conversations",
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, closeDB, err := openHistory()
		if err != nil {
			return err
		}
		defer closeDB()

		turns, err := conv.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, t := range turns {
			printTurn(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete a session's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, closeDB, err := openHistory()
		if err != nil {
			return err
		}
		defer closeDB()

		if err := conv.DeleteAll(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history cleared for", args[0])
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the store without requiring API keys.
func openHistory() (*store.ConversationStore, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history database: %w", err)
	}
	return store.NewConversationStore(db), db.Close, nil
}
