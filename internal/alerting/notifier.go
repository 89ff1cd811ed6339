package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ozon-price-tracker/internal/pricing"
)

// Notifier delivers a price-change event to one recipient.
type Notifier interface {
	Notify(ctx context.Context, event pricing.Event, chatID string) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with the rendered event text.
func (n *TelegramNotifier) Notify(ctx context.Context, event pricing.Event, chatID string) error {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    renderMessage(event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("product_id", event.ProductID).
		Str("chat_id", chatID).
		Msg("price alert sent")
	return nil
}

func renderMessage(event pricing.Event) string {
	direction := "📈 +"
	if event.DeltaPct.IsNegative() {
		direction = "📉 "
	}

	builder := strings.Builder{}
	builder.WriteString("📢 Price change!\n\n")
	builder.WriteString(fmt.Sprintf("📦 %s\n", event.Name))
	builder.WriteString(fmt.Sprintf("Old price: %s₽\n", event.OldPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("New price: %s₽\n", event.NewPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Change: %s%s%%\n\n", direction, event.DeltaPct.Abs().StringFixed(1)))
	builder.WriteString(event.URL)
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
