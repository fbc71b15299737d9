package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

// OrderStatusChangedEvent is published whenever the backend persists an
// order status transition, for the storefront/CRM side to consume.
type OrderStatusChangedEvent struct {
	OrderID    uint      `json:"order_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	AwbNumber  string    `json:"awb_number,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits order lifecycle events.
type Publisher interface {
	PublishOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error
	Close() error
}

// serviceBusPublisher implements Publisher over Azure Service Bus.
type serviceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewPublisher creates a Service Bus publisher. With no connection
// string configured it returns a no-op publisher so the sync paths work
// without a bus.
func NewPublisher(cfg config.AzureConfig) (Publisher, error) {
	if cfg.QueueConnStr == "" {
		log.Info().Msg("Service Bus connection string not configured, order events disabled")
		return &noopPublisher{}, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &serviceBusPublisher{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// PublishOrderStatusChanged sends one event to the queue.
func (p *serviceBusPublisher) PublishOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"event": "order_status_changed",
			"time":  time.Now().UTC().Format(time.RFC3339),
		},
	}

	return p.sender.SendMessage(ctx, msg, nil)
}

// Close closes the Service Bus sender and client.
func (p *serviceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}

type noopPublisher struct{}

func (*noopPublisher) PublishOrderStatusChanged(context.Context, OrderStatusChangedEvent) error {
	return nil
}

func (*noopPublisher) Close() error { return nil }
