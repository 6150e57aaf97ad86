package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

var apiKeysFlag []string

var rootCmd = &cobra.Command{
	Use:   "gymbro",
	Short: "GymBro AI personal trainer chat service",
	Long: `GymBro AI relays chat messages to Gemini, streams the replies back and keeps
each session's history in SQLite.

API keys are read from the secrets file (SECRETS_FILE), then GOOGLE_API_KEYS
or GOOGLE_API_KEY, then any --api-key flags. When a key runs out of quota
the next one is used.

Without a subcommand the HTTP and WebSocket server is started.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command
func Execute() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&apiKeysFlag, "api-key", nil, "Gemini API key to add to the pool (repeatable)")
	addServeFlags(rootCmd)
}
