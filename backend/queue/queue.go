package queue

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

// Producer enqueues one encoded push batch.
type Producer interface {
	Publish(body []byte) error
}

// Consumer drains push batches from the queue and delivers them until ctx is done.
type Consumer interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// ProducerFactory builds a push batch producer on a shared channel.
type ProducerFactory interface {
	CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error)
}

// ConsumerFactory builds a push batch consumer on a shared channel.
type ConsumerFactory interface {
	CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error)
}

// Queue is the push stage: producers publish batches, consumers send them to Expo.
type Queue struct {
	Producers []Producer
	Consumers []Consumer
	conn      *amqp.Connection
}

// connect dials RabbitMQ and opens a confirming channel. Connection loss is logged.
func connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	if err = ch.Confirm(false); err != nil {
		conn.Close()
		return nil, nil, err
	}

	notifyClose := make(chan *amqp.Error, 1)
	conn.NotifyClose(notifyClose)

	go func() {
		err := <-notifyClose
		if err != nil {
			log.Printf("RabbitMQ connection closed: %v", err)
		}
	}()

	return conn, ch, nil
}

// InitQueue declares the durable push batch queue queueName and attaches one
// producer or consumer per factory.
func InitQueue(url string, queueName string, prodFactories []ProducerFactory, consFactories []ConsumerFactory) (*Queue, error) {
	conn, ch, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}

	var producers []Producer
	var consumers []Consumer

	queue, err := ch.QueueDeclare(
		queueName,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring queue: %w", err)
	}

	for _, prodFactory := range prodFactories {
		producer, err := prodFactory.CreateProducer(conn, ch, &queue)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("error creating producer: %w", err)
		}
		producers = append(producers, producer)
	}

	for _, consFactory := range consFactories {
		consumer, err := consFactory.CreateConsumer(conn, ch, &queue)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("error creating consumer: %w", err)
		}
		consumers = append(consumers, consumer)
	}

	return &Queue{
		Producers: producers,
		Consumers: consumers,
		conn:      conn,
	}, nil
}

// StartConsumers starts every consumer of the queue in its own goroutine.
// Consumers run until ctx is cancelled; the returned WaitGroup is done once all of them stopped.
func (q *Queue) StartConsumers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup

	for _, consumer := range q.Consumers {
		wg.Add(1)

		go func(c Consumer) {
			defer wg.Done()

			if _, err := c.Consume(ctx); err != nil {
				log.Printf("error starting consumer: %v", err)
				return
			}
			<-ctx.Done()
		}(consumer)
	}

	return &wg
}

// Close closes the underlying RabbitMQ connection, if any.
func (q *Queue) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
