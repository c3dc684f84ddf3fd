package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/pdfflow/pkg/channels/gochannel"
	"github.com/dukex/pdfflow/pkg/channels/kafka"
	"github.com/dukex/pdfflow/pkg/eventbus"
)

// NewEventBus creates the event bus for provider: "gochannel" (in-memory) or "kafka".
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "pdfflow")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
