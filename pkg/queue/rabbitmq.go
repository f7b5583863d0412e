package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"superfan/pkg/config"
	"superfan/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	MemberEventQueueName = "member_event_queue"
	MemberEventExchange  = "member_events"
	MemberEventKey       = "member_event"
)

// Task types carried on the member event queue.
const (
	TaskRewardRedeemed  = "reward.redeemed"
	TaskRefundProcessed = "refund.processed"
	TaskCampaignFunded  = "campaign.funded"
)

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logger.Logger
}

func NewRabbitMQClient(cfg *config.Config, log *logger.Logger) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%s/",
		cfg.RabbitMQUser,
		cfg.RabbitMQPassword,
		cfg.RabbitMQHost,
		cfg.RabbitMQPort,
	)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange for member events
	err = channel.ExchangeDeclare(
		MemberEventExchange, // name
		"direct",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare priority queue for member events
	_, err = channel.QueueDeclare(
		MemberEventQueueName, // name
		true,                 // durable
		false,                // delete when unused
		false,                // exclusive
		false,                // no-wait
		amqp.Table{
			"x-max-priority": 10, // Enable priority queue (0-10)
		},
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = channel.QueueBind(
		MemberEventQueueName, // queue name
		MemberEventKey,       // routing key
		MemberEventExchange,  // exchange
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	log.Info("Connected to RabbitMQ at %s:%s", cfg.RabbitMQHost, cfg.RabbitMQPort)

	return &Client{
		conn:    conn,
		channel: channel,
		logger:  log,
	}, nil
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// PublishMemberEventTask publishes a member event task to the queue with priority
func (c *Client) PublishMemberEventTask(task map[string]interface{}) error {
	priority := 1 // Default priority
	if p, ok := task["priority"].(int); ok {
		priority = p
		// Clamp priority to 0-10 range
		if priority < 0 {
			priority = 0
		}
		if priority > 10 {
			priority = 10
		}
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = c.channel.Publish(
		MemberEventExchange, // exchange
		MemberEventKey,      // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         taskJSON,
			Priority:     uint8(priority),
			DeliveryMode: amqp.Persistent, // Make message persistent
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		c.logger.Error("[RABBITMQ] Failed to publish message to exchange=%s, routing_key=%s: %v", MemberEventExchange, MemberEventKey, err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Info("[RABBITMQ] Successfully published member event task to exchange=%s, routing_key=%s, queue=%s: %s", MemberEventExchange, MemberEventKey, MemberEventQueueName, string(taskJSON))
	return nil
}

// ConsumeMemberEventTasks consumes member event tasks from the queue
func (c *Client) ConsumeMemberEventTasks(handler func(task map[string]interface{}) error) error {
	msgs, err := c.channel.Consume(
		MemberEventQueueName, // queue
		"",                   // consumer
		false,                // auto-ack (we'll manually ack after processing)
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,                  // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("[RABBITMQ] Started consuming from member event queue: %s", MemberEventQueueName)

	go func() {
		for msg := range msgs {
			c.logger.Info("[RABBITMQ] Received message from queue: %s, message_size=%d bytes", MemberEventQueueName, len(msg.Body))

			var task map[string]interface{}
			if err := json.Unmarshal(msg.Body, &task); err != nil {
				c.logger.Error("[RABBITMQ] Failed to unmarshal member event task: %v, body=%s", err, string(msg.Body))
				msg.Nack(false, false) // Reject and don't requeue
				continue
			}

			// Process task
			if err := handler(task); err != nil {
				c.logger.Error("[RABBITMQ] Handler failed to process member event task: %v, task=%+v", err, task)
				msg.Nack(false, true) // Reject and requeue
				continue
			}

			// Acknowledge message
			msg.Ack(false)
		}
	}()

	return nil
}

// GetQueueLength returns the number of messages in the queue
func (c *Client) GetQueueLength() (int, error) {
	queue, err := c.channel.QueueInspect(MemberEventQueueName)
	if err != nil {
		return 0, err
	}
	return queue.Messages, nil
}
