package cli

import (
	"github.com/spf13/cobra"

	"ozon-price-tracker/internal/app"
)

var (
	addChatID   string
	addUsername string
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a product URL for tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Track(cmd.Context(), app.TrackOptions{
			URL:      args[0],
			ChatID:   addChatID,
			Username: addUsername,
		})
	},
}

func init() {
	addCmd.Flags().StringVar(&addChatID, "chat-id", "", "Telegram chat id to notify on price changes")
	addCmd.Flags().StringVar(&addUsername, "username", "", "Display name for the subscriber")
}
