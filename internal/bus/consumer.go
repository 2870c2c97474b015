package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nao1215/reminder/pkg/event"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed はブローカー側で配信チャネルが閉じられたことを表す。
var ErrDeliveriesClosed = errors.New("配信チャネルが閉じられました")

// ConsumeChannel は購読に必要なAMQPチャネルの操作。*amqp.Channelが満たす。
type ConsumeChannel interface {
	Channel
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

var _ ConsumeChannel = (*amqp.Channel)(nil)

// Consumer はキューを逐次的に購読し、Processorで処理する。
type Consumer struct {
	ch        ConsumeChannel
	cfg       Config
	processor *Processor
	logger    *slog.Logger
	tag       string
}

// NewConsumer はconn上にチャネルを開き、トポロジーを宣言してConsumerを生成する。
func NewConsumer(conn *amqp.Connection, handler event.Handler, cfg Config, logger *slog.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("チャネルの作成に失敗: %w", err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("prefetchの設定に失敗: %w", err)
	}
	if err := DeclareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return newConsumer(ch, handler, cfg, logger), nil
}

// newConsumer は準備済みのチャネルからConsumerを組み立てる。
func newConsumer(ch ConsumeChannel, handler event.Handler, cfg Config, logger *slog.Logger) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		ch:        ch,
		cfg:       cfg,
		processor: NewProcessor(handler, ch, cfg, logger),
		logger:    logger,
		tag:       "reminder-" + uuid.NewString(),
	}
}

// Run はctxが終了するまでメッセージを1件ずつ処理する。
// ctxが終了すると購読を取り消し、処理中のメッセージを終えてから戻る。
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(
		c.cfg.Queue,
		c.tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("購読の開始に失敗: %s: %w", c.cfg.Queue, err)
	}
	c.logger.InfoContext(ctx, "購読を開始しました",
		slog.String("queue", c.cfg.Queue),
		slog.String("consumer_tag", c.tag),
	)

	for {
		select {
		case <-ctx.Done():
			if err := c.ch.Cancel(c.tag, false); err != nil {
				c.logger.WarnContext(ctx, "購読の取り消しに失敗しました", slog.Any("error", err))
			}
			c.logger.InfoContext(ctx, "購読を停止しました", slog.String("queue", c.cfg.Queue))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.processor.Process(ctx, d)
		}
	}
}

// Close はチャネルを閉じる。未Ackのメッセージはブローカーに戻る。
func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("チャネルのクローズに失敗: %w", err)
	}
	return nil
}
