package events

import (
	"context"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/contracts"
	"github.com/fitpulse/service-billing/internal/platform/kafka"
)

// ChargeHandler records settled billing charges.
type ChargeHandler interface {
	HandleBillingCharge(ctx context.Context, event contracts.BillingChargeEvent) error
}

// BillingEventConsumer listens to billing events and records the charges as payments.
type BillingEventConsumer struct {
	consumer *kafka.Consumer
	handler  ChargeHandler
	logger   *zap.Logger
}

// NewBillingEventConsumer creates a new consumer for billing events.
func NewBillingEventConsumer(
	brokers []string,
	groupID string,
	handler ChargeHandler,
	logger *zap.Logger,
) *BillingEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, contracts.TopicBillingEvents, logger)
	return &BillingEventConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins consuming billing events. It blocks until the context is cancelled.
func (c *BillingEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage routes incoming Kafka messages to the appropriate handler.
func (c *BillingEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from billing topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return err
	}

	c.logger.Info("received billing event",
		zap.String("type", cloudEvent.Type),
		zap.String("id", cloudEvent.ID),
	)

	switch {
	case strings.EqualFold(cloudEvent.Type, contracts.BillingChargeSucceeded):
		return c.handleChargeSucceeded(ctx, cloudEvent)

	default:
		c.logger.Debug("ignoring unhandled billing event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

// handleChargeSucceeded processes a BillingChargeEvent.
func (c *BillingEventConsumer) handleChargeSucceeded(ctx context.Context, ce kafka.CloudEvent) error {
	var event contracts.BillingChargeEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse BillingChargeEvent data", zap.Error(err))
		return err
	}

	return c.handler.HandleBillingCharge(ctx, event)
}

// Close closes the underlying Kafka consumer.
func (c *BillingEventConsumer) Close() error {
	return c.consumer.Close()
}
