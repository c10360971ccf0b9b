package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/papertrade/apiserver/types"
	"go.uber.org/zap"
)

const (
	attrEventType = "event_type"
	attrUserID    = "user_id"
	attrSymbol    = "symbol"

	eventTypeTrade = "trade.executed"
)

// TradePublisher publishes settled trades as JSON on a single channel.
type TradePublisher struct {
	mq      *MQ
	channel string
}

func NewTradePublisher(m *MQ, channel string) *TradePublisher {
	return &TradePublisher{mq: m, channel: channel}
}

func (p *TradePublisher) PublishTrade(ctx context.Context, event types.TradeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode trade event: %w", err)
	}

	id, err := p.mq.Publish(ctx, p.channel, data, map[string]string{
		attrEventType: eventTypeTrade,
		attrUserID:    strconv.Itoa(event.UserID),
		attrSymbol:    event.Symbol,
	})
	if err != nil {
		return err
	}

	zap.L().Debug("Published trade event",
		zap.String("channel", p.channel),
		zap.String("message_id", id),
		zap.Int64("transaction_id", event.TransactionID))
	return nil
}

// SubscribeTrades decodes trade events from channel and passes them to fn.
// Messages that are not trade events are acknowledged and skipped.
func SubscribeTrades(ctx context.Context, m *MQ, channel string, fn func(ctx context.Context, event types.TradeEvent) error) error {
	return m.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		if kind := msg.Attributes[attrEventType]; kind != "" && kind != eventTypeTrade {
			return nil
		}

		var event types.TradeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			zap.L().Warn("Dropping malformed trade event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return fn(ctx, event)
	})
}
