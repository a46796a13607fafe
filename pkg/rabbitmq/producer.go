/**
 * @description
 * This package provides a small producer for publishing packet lifecycle
 * events to RabbitMQ. It encapsulates connecting to the broker and
 * publishing JSON messages to a durable topic exchange.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/luckyshare/packet-service/internal/domain"
)

// Routing keys for packet lifecycle events.
const (
	PacketCreatedRoutingKey = "packet.created"
	PacketClaimedRoutingKey = "packet.claimed"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	PublishPacketCreated(ctx context.Context, event domain.PacketCreatedEvent) error
	PublishPacketClaimed(ctx context.Context, event domain.PacketClaimedEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is
// unavailable at startup; the service keeps serving without events.
type EventProducerFallback struct{}

func (p *EventProducerFallback) PublishPacketCreated(ctx context.Context, event domain.PacketCreatedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"packet created event skipped\" packet_id=%s", event.PacketID)
	return nil
}

func (p *EventProducerFallback) PublishPacketClaimed(ctx context.Context, event domain.PacketClaimedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"packet claimed event skipped\" packet_id=%s", event.PacketID)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer connects to RabbitMQ and returns a producer bound to the
// given topic exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = "packet.events"
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

// PublishPacketCreated publishes a packet.created event.
func (p *EventProducer) PublishPacketCreated(ctx context.Context, event domain.PacketCreatedEvent) error {
	return p.publish(ctx, PacketCreatedRoutingKey, event)
}

// PublishPacketClaimed publishes a packet.claimed event.
func (p *EventProducer) PublishPacketClaimed(ctx context.Context, event domain.PacketClaimedEvent) error {
	return p.publish(ctx, PacketClaimedRoutingKey, event)
}

func (p *EventProducer) publish(ctx context.Context, routingKey string, body interface{}) error {
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", p.exchange, err)
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return chErr
		}
		p.channel = ch
		if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        jsonBody,
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		// One-shot retry on a fresh channel.
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" routing_key=%s err=%v", routingKey, err)
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return err
		}
		p.channel = ch
		if exErr := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); exErr != nil {
			return err
		}
		return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	}
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
