package cli

import (
	"github.com/spf13/cobra"

	"ozon-price-tracker/internal/app"
)

var removeChatID string

var removeCmd = &cobra.Command{
	Use:   "remove <url-or-id>",
	Short: "Stop tracking a product for a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Remove(cmd.Context(), app.RemoveOptions{
			Ref:    args[0],
			ChatID: removeChatID,
		})
	},
}

func init() {
	removeCmd.Flags().StringVar(&removeChatID, "chat-id", "", "Telegram chat id whose subscription to remove")
}
