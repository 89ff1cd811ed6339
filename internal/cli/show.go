package cli

import (
	"github.com/spf13/cobra"

	"ozon-price-tracker/internal/app"
)

var (
	showProduct string
	showChatID  string
	showLimit   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show tracked products, or one product's recent price history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			ProductID: showProduct,
			ChatID:    showChatID,
			Limit:     showLimit,
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showProduct, "product", "", "Canonical product id to show history for")
	showCmd.Flags().StringVar(&showChatID, "chat-id", "", "Only show products this chat is subscribed to")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Maximum history rows to print")
}
