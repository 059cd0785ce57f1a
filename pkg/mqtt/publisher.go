package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/waggle-sensor/registration-agent/internal/models"
	"github.com/waggle-sensor/registration-agent/pkg/hostinfo"
)

// quiesceMillis is how long Disconnect waits for in-flight work.
const quiesceMillis = 250

// EventPublisher announces completed registrations on a broker topic. It
// connects only when there is something to publish.
type EventPublisher struct {
	session       Session
	broker        string
	clientID      string
	caCertificate string
	topic         string
	qos           byte
	hostInfo      hostinfo.Collector
	logger        zerolog.Logger
}

// NewEventPublisher initializes an EventPublisher. hostInfo may be nil.
func NewEventPublisher(session Session, broker, clientID, caCertificate, topic string, qos int, hostInfo hostinfo.Collector, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		session:       session,
		broker:        broker,
		clientID:      clientID,
		caCertificate: caCertificate,
		topic:         topic,
		qos:           byte(qos),
		hostInfo:      hostInfo,
		logger:        logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish sends the event and waits for the broker to acknowledge it.
func (p *EventPublisher) Publish(ctx context.Context, event models.RegistrationEvent) error {
	if event.Host == nil && p.hostInfo != nil {
		event.Host = p.hostInfo.Collect(ctx)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize registration event: %w", err)
	}

	if err := p.session.Initialize(p.broker, p.clientID, p.caCertificate); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.broker, err)
	}
	defer p.session.Disconnect(quiesceMillis)

	p.logger.Info().Str("topic", p.topic).Str("node_id", event.NodeID).Msg("Publishing registration event")

	token := p.session.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish registration event: %w", err)
		}
	case <-ctx.Done():
		p.logger.Warn().Str("topic", p.topic).Msg("Publish operation cancelled")
		return ctx.Err()
	}

	return nil
}
