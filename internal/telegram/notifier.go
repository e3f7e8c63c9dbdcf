package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"trafficops_backend/internal/events"
	"trafficops_backend/platform/logger"
)

// NotificationStore persists the delivery state of sale alerts.
type NotificationStore interface {
	MarkNotificationSent(ctx context.Context, dealID int64) error
	MarkNotificationFailed(ctx context.Context, dealID int64, cause string) error
}

// teamEmoji distinguishes teams at a glance in the chat.
var teamEmoji = map[string]string{
	"Kenesary": "🦅",
	"Arystan":  "🦁",
	"Muha":     "🚀",
	"Traf4":    "🎯",
}

var funnelLabels = map[string]string{
	"express":     "Экспресс",
	"challenge3d": "Трёхдневник",
	"intensive1d": "Однодневник",
}

// Notifier turns SaleRecorded events into Telegram alerts and records the
// delivery outcome. It runs on the event bus's own goroutines; a failed
// delivery is logged and stored but never propagated back to the webhook.
type Notifier struct {
	client *Client
	store  NotificationStore
	log    *logger.Logger
}

// NewNotifier creates the notifier.
func NewNotifier(client *Client, store NotificationStore, log *logger.Logger) *Notifier {
	return &Notifier{client: client, store: store, log: log}
}

// RegisterEventHandlers subscribes the notifier to sale events.
func (n *Notifier) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.SaleRecorded{}.EventName(), n)
	n.log.Info("telegram notifier registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.SaleRecorded:
		return n.handleSaleRecorded(ctx, e)
	}
	return nil
}

func (n *Notifier) handleSaleRecorded(ctx context.Context, e events.SaleRecorded) error {
	if !n.client.Enabled() {
		return nil
	}

	text := FormatSaleMessage(e)
	if err := n.client.Broadcast(ctx, text); err != nil {
		if storeErr := n.store.MarkNotificationFailed(ctx, e.DealID, err.Error()); storeErr != nil {
			n.log.DatabaseError("mark notification failed", storeErr)
		}
		return err
	}

	if err := n.store.MarkNotificationSent(ctx, e.DealID); err != nil {
		n.log.DatabaseError("mark notification sent", err)
	}
	return nil
}

// FormatSaleMessage renders the chat alert for one sale.
func FormatSaleMessage(e events.SaleRecorded) string {
	var b strings.Builder
	b.WriteString("💰 Новая продажа!\n\n")
	fmt.Fprintf(&b, "📋 %s\n", e.DealName)
	fmt.Fprintf(&b, "💵 Сумма: %s ₸\n", formatAmount(e.Price))

	if e.Targetologist != "" {
		emoji := teamEmoji[e.Targetologist]
		if emoji == "" {
			emoji = "👤"
		}
		fmt.Fprintf(&b, "%s Таргетолог: %s\n", emoji, e.Targetologist)
	}

	funnel := funnelLabels[e.FunnelType]
	if funnel == "" {
		funnel = e.FunnelType
	}
	fmt.Fprintf(&b, "🎓 Воронка: %s\n", funnel)

	if e.UTMSource != "" {
		fmt.Fprintf(&b, "🔗 Источник: %s\n", e.UTMSource)
	}
	if e.UTMCampaign != "" {
		fmt.Fprintf(&b, "📣 Кампания: %s\n", e.UTMCampaign)
	}
	fmt.Fprintf(&b, "\n🕐 %s", e.ClosedAt.Format("02.01.2006 15:04"))
	return b.String()
}

// formatAmount renders 1234567 as "1 234 567".
func formatAmount(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, " ")
	if neg {
		out = "-" + out
	}
	return out
}
