// Package notify pushes operator alerts about position lifecycle events.
// Rendering lives here: the executor hands over its structured close record
// and this package turns it into channel messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avyukov/hedgebot/internal/domain"
)

// Event kinds a Notifier can be configured to deliver.
const (
	EventPositionClosed = "position_closed"
	EventError          = "error"
)

// Sender delivers one rendered message to a channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Notifier renders lifecycle events and fans them out to the configured
// senders. The events set filters which kinds are delivered; an empty set
// delivers everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders. Only event kinds
// listed in events pass the filter; an empty list allows all of them.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// PositionClosed renders and delivers the close alert for one archived
// position.
func (n *Notifier) PositionClosed(ctx context.Context, rec domain.PositionRecord) error {
	return n.send(ctx, EventPositionClosed, renderPositionClosed(rec))
}

// Alert delivers a free-form message under the given event kind.
func (n *Notifier) Alert(ctx context.Context, event, text string) error {
	return n.send(ctx, event, text)
}

func (n *Notifier) send(ctx context.Context, event, text string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", slog.String("event", event))
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, text); err != nil {
			n.logger.Warn("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

func renderPositionClosed(rec domain.PositionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Position closed: %s %s %s\n", rec.Exchange, rec.TradingPair, rec.Side)
	fmt.Fprintf(&b, "reason: %s\n", rec.CloseType)
	fmt.Fprintf(&b, "filled %.6f @ %.6f, closed @ %.6f\n", rec.FilledAmount, rec.EntryPrice, rec.ClosePrice)
	fmt.Fprintf(&b, "net pnl: %.6f %s (fees %.6f)", rec.NetPnLQuote, quoteAsset(rec.TradingPair), rec.CumFeesQuote)
	if rec.HedgeExchange != "" {
		fmt.Fprintf(&b, "\nhedge leg: %s %s", rec.HedgeExchange, rec.HedgePair)
	}
	return b.String()
}

// quoteAsset extracts the quote currency from a pair like ETH-USDT.
func quoteAsset(pair string) string {
	for i := len(pair) - 1; i >= 0; i-- {
		if pair[i] == '-' || pair[i] == '/' {
			return pair[i+1:]
		}
	}
	return pair
}
