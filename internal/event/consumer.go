package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type Consumer interface {
	Start() error
	Close() error
}

type EventConsumer struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	queueName    string
	trustConfigs repository.TrustConfigStore
	memories     repository.MemoryStore
	publications repository.PublicationStore
	spaces       repository.SpaceStore
	shutdown     chan struct{}
	wg           sync.WaitGroup
	enabled      bool
}

type ExchangeConfig struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       amqp091.Table
}

type BindingConfig struct {
	Exchange   string
	RoutingKey string
}

func NewEventConsumer(
	rabbitURI string,
	queueName string,
	trustConfigs repository.TrustConfigStore,
	memories repository.MemoryStore,
	publications repository.PublicationStore,
	spaces repository.SpaceStore,
) (*EventConsumer, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event consumption is disabled")
		return &EventConsumer{
			trustConfigs: trustConfigs,
			memories:     memories,
			publications: publications,
			spaces:       spaces,
			shutdown:     make(chan struct{}),
			enabled:      false,
		}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &EventConsumer{
		conn:         conn,
		channel:      channel,
		queueName:    queueName,
		trustConfigs: trustConfigs,
		memories:     memories,
		publications: publications,
		spaces:       spaces,
		shutdown:     make(chan struct{}),
		enabled:      true,
	}, nil
}

func (c *EventConsumer) Start() error {
	if !c.enabled {
		log.Println("Event consumption is disabled, not starting consumer")
		return nil
	}

	exchanges := []ExchangeConfig{
		{
			Name:       "user-events",
			Type:       "topic",
			Durable:    true,
			AutoDelete: false,
			Internal:   false,
			NoWait:     false,
		},
		{
			Name:       "space.events",
			Type:       "topic",
			Durable:    true,
			AutoDelete: false,
			Internal:   false,
			NoWait:     false,
		},
	}

	for _, exchange := range exchanges {
		err := c.channel.ExchangeDeclare(
			exchange.Name,
			exchange.Type,
			exchange.Durable,
			exchange.AutoDelete,
			exchange.Internal,
			exchange.NoWait,
			exchange.Args,
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange.Name, err)
		}
		log.Printf("Declared exchange: %s", exchange.Name)
	}

	_, err := c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	log.Printf("Declared queue: %s", c.queueName)

	bindings := []BindingConfig{
		{Exchange: "user-events", RoutingKey: "user.registered"},
		{Exchange: "space.events", RoutingKey: "space.deleted"},
	}

	for _, binding := range bindings {
		err := c.channel.QueueBind(
			c.queueName,        // queue name
			binding.RoutingKey, // routing key
			binding.Exchange,   // exchange
			false,              // no-wait
			nil,                // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue to exchange %s with key %s: %w",
				binding.Exchange, binding.RoutingKey, err)
		}
		log.Printf("Bound queue %s to exchange %s with routing key %s",
			c.queueName, binding.Exchange, binding.RoutingKey)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(msgs)
	}()

	log.Println("Event consumer started")
	return nil
}

func (c *EventConsumer) consume(msgs <-chan amqp091.Delivery) {
	for {
		select {
		case <-c.shutdown:
			log.Println("Stopping event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Println("Message channel closed, reconnecting...")
				time.Sleep(5 * time.Second)
				return
			}

			err := c.processMessage(msg)
			if err != nil {
				log.Printf("Error processing message: %v", err)
				if err := msg.Nack(false, true); err != nil {
					log.Printf("Error NACKing message: %v", err)
				}
			} else {
				if err := msg.Ack(false); err != nil {
					log.Printf("Error ACKing message: %v", err)
				}
			}
		}
	}
}

func (c *EventConsumer) processMessage(msg amqp091.Delivery) error {
	routingKey := msg.RoutingKey
	exchange := msg.Exchange

	log.Printf("Processing message from exchange '%s' with routing key: %s", exchange, routingKey)

	switch routingKey {
	case "user.registered":
		return c.handleUserRegistered(msg.Body)
	case "space.deleted":
		return c.handleSpaceDeleted(msg.Body)
	default:
		log.Printf("Unknown routing key: %s from exchange: %s", routingKey, exchange)
		return nil // Acknowledge the message to avoid requeuing
	}
}

// handleUserRegistered seeds the default trust config so the owner shows up
// with sharing disabled instead of no config at all.
func (c *EventConsumer) handleUserRegistered(body []byte) error {
	var event UserRegisterEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal user registered event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.trustConfigs.GetOrCreate(ctx, event.UserID); err != nil {
		return fmt.Errorf("failed to seed trust config for user %s: %w", event.UserID, err)
	}

	log.Printf("Seeded default trust config for user %s", event.UserID)
	return nil
}

// handleSpaceDeleted retracts every copy published to the deleted space and
// removes the destination from each source memory's tracking arrays.
func (c *EventConsumer) handleSpaceDeleted(body []byte) error {
	var event SpaceDeletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal space deleted event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kind := c.destinationKind(ctx, event.SpaceID)

	pubs, err := c.publications.FindByDestination(ctx, event.SpaceID)
	if err != nil {
		return fmt.Errorf("failed to list copies in deleted space %s: %w", event.SpaceID, err)
	}

	for _, pub := range pubs {
		if err := c.publications.SoftDelete(ctx, pub.DestinationID, pub.CompositeID); err != nil {
			log.Printf("Failed to retract copy %s from deleted space %s: %v", pub.CompositeID, event.SpaceID, err)
			continue
		}
		sourceID, err := bson.ObjectIDFromHex(pub.SourceMemoryID)
		if err != nil {
			log.Printf("Invalid source memory ID %s on copy %s", pub.SourceMemoryID, pub.CompositeID)
			continue
		}
		if err := c.memories.RemoveDestination(ctx, sourceID, kind, event.SpaceID); err != nil && err != mongo.ErrNoDocuments {
			log.Printf("Failed to untrack destination %s on memory %s: %v", event.SpaceID, pub.SourceMemoryID, err)
		}
	}

	if err := c.spaces.Delete(ctx, event.SpaceID); err != nil && err != mongo.ErrNoDocuments {
		log.Printf("Failed to remove space record %s: %v", event.SpaceID, err)
	}

	log.Printf("Retracted %d copies from deleted space %s", len(pubs), event.SpaceID)
	return nil
}

func (c *EventConsumer) destinationKind(ctx context.Context, spaceID string) models.SpaceKind {
	space, err := c.spaces.FindBySpaceID(ctx, spaceID)
	if err != nil {
		return models.SpaceKindSpace
	}
	return space.Kind
}

func (c *EventConsumer) Close() error {
	if !c.enabled {
		return nil
	}

	close(c.shutdown)
	c.wg.Wait()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}
