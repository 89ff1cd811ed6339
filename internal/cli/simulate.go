package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateName   string
	simulateOld    float64
	simulateNew    float64
	simulateChatID string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a test price-change alert through the notification channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOld <= 0 || simulateNew <= 0 {
			return errors.New("--old and --new must be greater than 0")
		}

		oldPrice := decimal.NewFromFloat(simulateOld)
		newPrice := decimal.NewFromFloat(simulateNew)
		return getApp().SimulateAlert(cmd.Context(), simulateName, oldPrice, newPrice, simulateChatID)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateName, "name", "Test product", "Product name to show in the alert")
	simulateCmd.Flags().Float64Var(&simulateOld, "old", 0, "Old price")
	simulateCmd.Flags().Float64Var(&simulateNew, "new", 0, "New price")
	simulateCmd.Flags().StringVar(&simulateChatID, "chat-id", "", "Telegram chat id to deliver the test alert to")
}
