package eventstreamutils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/eventstream"
	"github.com/papercomputeco/uistream/pkg/eventstream/kafka"
	"github.com/papercomputeco/uistream/pkg/eventstream/nop"
)

type NewPublisherOpts struct {
	ProviderType string

	// Brokers is a comma separated list of kafka brokers.
	Brokers string
	Topic   string
	Logger  *zap.Logger
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(&kafka.Config{
			Brokers: splitBrokers(o.Brokers),
			Topic:   o.Topic,
			Logger:  o.Logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
