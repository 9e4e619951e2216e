package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/jghoshh/goalpal/backend/server/notifications"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
	storage "github.com/jghoshh/goalpal/backend/storage/cache"
)

// PushQueueName is the durable queue push batches travel through.
const PushQueueName = "pushQueue"

const deliverTimeout = 30 * time.Second

// PushBatch is one queued unit of delivery, never larger than push.MaxChunkSize.
type PushBatch struct {
	ID       string         `json:"id"`
	Messages []push.Message `json:"messages"`
}

// PushProducerFactory is a struct for creating new PushProducer instances.
type PushProducerFactory struct{}

// PushConsumerFactory is a struct for creating new PushConsumer instances.
// Cache is used to skip batches that were already delivered, Sender performs the delivery.
type PushConsumerFactory struct {
	Cache  storage.CacheInterface
	Sender notifications.Sender
}

// PushProducer is a struct for managing the channel and queue of the AMQP message producer for push batches.
type PushProducer struct {
	channel *amqp.Channel // the channel used for publishing messages
	queue   *amqp.Queue   // the queue to which messages will be sent
}

// PushConsumer is a struct for managing the channel, queue, cache and sender of the AMQP message consumer for push batches.
type PushConsumer struct {
	channel *amqp.Channel          // the channel used for consuming messages
	queue   *amqp.Queue            // the queue from which messages will be consumed
	cache   storage.CacheInterface // the cache for checking if a batch has been delivered
	sender  notifications.Sender   // the transport batches are delivered through
}

// CreateProducer is a method on PushProducerFactory for creating a new instance of PushProducer.
// It accepts three arguments:
// - conn: A pointer to an AMQP connection.
// - ch: A pointer to an AMQP channel.
// - queue: A pointer to an AMQP queue.
//
// The function returns a new instance of PushProducer and an error. In the current implementation, the error is always nil.
func (f *PushProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &PushProducer{
		channel: ch,
		queue:   queue,
	}, nil
}

// CreateConsumer is a method on PushConsumerFactory for creating a new instance of PushConsumer.
// It accepts three arguments:
// - conn: A pointer to an AMQP connection.
// - ch: A pointer to an AMQP channel.
// - queue: A pointer to an AMQP queue.
//
// The function returns a new instance of PushConsumer and an error if the factory is missing its cache or sender.
func (f *PushConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	if f.Cache == nil || f.Sender == nil {
		return nil, errors.New("push consumer needs a cache and a sender")
	}
	return &PushConsumer{
		channel: ch,
		queue:   queue,
		cache:   f.Cache,
		sender:  f.Sender,
	}, nil
}

// Publish is a method on PushProducer for publishing a message to the AMQP queue.
// It accepts a single argument:
// - body: A byte array containing the message to be published.
//
// The function returns an error if there was a problem with publishing the message.
func (pp *PushProducer) Publish(body []byte) error {
	err := pp.channel.Publish(
		"",            // exchange
		pp.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume is a method on PushConsumer for consuming messages from the AMQP queue.
// It accepts a single argument:
// - ctx: The context within which the method is being called.
//
// It sets up a consumer on the queue and then launches a goroutine that handles each delivery until ctx is done.
// The function returns the channel of deliveries and an error if there was a problem with setting up the consumer.
func (pc *PushConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := pc.channel.Consume(
		pc.queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}
				pc.handle(ctx, d)

			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// handle processes a single delivery. Delivered batch ids are remembered in the
// cache under "push_<id>" so a redelivered batch is acknowledged without resending.
// A failed delivery is requeued once; a batch that fails again after redelivery is dropped.
func (pc *PushConsumer) handle(ctx context.Context, d amqp.Delivery) {
	batch := &PushBatch{}
	if err := json.Unmarshal(d.Body, batch); err != nil {
		log.Printf("failed to unmarshal push batch: %v", err)
		d.Nack(false, false)
		return
	}

	key := "push_" + batch.ID
	if _, err := pc.cache.Get(ctx, key); err == nil {
		d.Ack(false)
		return
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		log.Printf("error checking cache: %v", err)
		d.Nack(false, true)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	if err := pc.sender.Send(sendCtx, batch.Messages); err != nil {
		requeue := !d.Redelivered
		log.Printf("failed to deliver push batch %s (requeue=%t): %v", batch.ID, requeue, err)
		d.Nack(false, requeue)
		return
	}

	d.Ack(false)
	if err := pc.cache.Set(ctx, key, true); err != nil {
		log.Printf("failed to set key in cache: %v", err)
	}
}

// PushQueue publishes push messages onto the queue. It satisfies notifications.Sender,
// so the dispatcher can hand messages to RabbitMQ instead of calling Expo inline.
type PushQueue struct {
	queue *Queue
	next  uint64
}

func NewPushQueue(q *Queue) *PushQueue {
	return &PushQueue{queue: q}
}

// Send splits msgs into batches of at most push.MaxChunkSize and publishes each
// one, choosing producers in a round-robin manner.
func (pq *PushQueue) Send(ctx context.Context, msgs []push.Message) error {
	producerCount := len(pq.queue.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}

	for _, chunk := range push.Chunk(msgs, push.MaxChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := json.Marshal(&PushBatch{ID: uuid.NewString(), Messages: chunk})
		if err != nil {
			return fmt.Errorf("failed to marshal push batch: %w", err)
		}

		n := atomic.AddUint64(&pq.next, 1) - 1
		producer := pq.queue.Producers[n%uint64(producerCount)]
		if err := producer.Publish(body); err != nil {
			return fmt.Errorf("failed to publish push batch: %w", err)
		}
	}
	return nil
}

// BuildPushQueue is a function that initializes a new Queue for push batches.
// It accepts five arguments:
// - rabbitMQURL: A string containing the URL of the RabbitMQ server.
// - numProducers: An integer indicating the number of producers to create.
// - numConsumers: An integer indicating the number of consumers to create.
// - cache: A CacheInterface used to remember delivered batches.
// - sender: The transport consumers deliver batches through.
//
// The function returns the initialized Queue or an error if RabbitMQ could not be set up.
func BuildPushQueue(rabbitMQURL string, numProducers int, numConsumers int, cache storage.CacheInterface, sender notifications.Sender) (*Queue, error) {

	// Producer factories
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &PushProducerFactory{}
	}

	// Consumer factories
	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &PushConsumerFactory{Cache: cache, Sender: sender}
	}

	return InitQueue(rabbitMQURL, PushQueueName, prodFactories, consFactories)
}
