package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/reminder/pkg/event"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel はメッセージの発行に必要なAMQPチャネルの操作。
// *amqp.Channelが満たす。
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher はイベントをエンベロープとしてexchangeに発行する。
type Publisher struct {
	ch         Channel
	exchange   string
	routingKey string
}

// NewPublisher は新しいPublisherを生成する。
func NewPublisher(ch Channel, exchange, routingKey string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Publish はeをエンコードして永続メッセージとして発行する。
func (p *Publisher) Publish(ctx context.Context, e event.Event) error {
	body, err := event.Encode(e)
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         string(e.Tag()),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("イベントの発行に失敗: %s: %w", e.Tag(), err)
	}
	return nil
}
