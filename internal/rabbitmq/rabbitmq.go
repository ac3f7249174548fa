package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type MQConn struct {
	conn *amqp.Connection

	mu  sync.Mutex
	pub *amqp.Channel
}

func New(url string) (*MQConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &MQConn{
		conn: conn,
		pub:  pub,
	}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}

// Consume opens a dedicated channel for queue. Deliveries must be acked
// manually.
func (c *MQConn) Consume(queue string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := declare(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}

	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		return nil, err
	}

	return ch.Consume(queue, "", false, false, false, false, nil)
}

func (c *MQConn) Publish(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := declare(c.pub, queue); err != nil {
		return err
	}

	return c.pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (c *MQConn) Close() error {
	c.pub.Close()
	return c.conn.Close()
}
