package bus

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/retry"
)

// Dial はcfg.Retryに従って再試行しながらブローカーに接続する。
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	attempt := 0
	err := retry.DoContext(ctx, cfg.Retry, func() error {
		attempt++
		var err error
		conn, err = amqp.Dial(cfg.URL)
		if err != nil {
			logger.WarnContext(ctx, "RabbitMQへの接続に失敗しました",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("RabbitMQへの接続に失敗: %w", err)
	}
	return conn, nil
}

// DeclareTopology はexchange、キュー、デッドレターの経路を宣言する。
// 既に同じ定義で存在する場合は何もしない。
func DeclareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("exchangeの宣言に失敗: %s: %w", cfg.Exchange, err)
	}

	if err := ch.ExchangeDeclare(
		cfg.DeadLetterExchange(),
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("デッドレターexchangeの宣言に失敗: %s: %w", cfg.DeadLetterExchange(), err)
	}

	if _, err := ch.QueueDeclare(
		cfg.DeadLetterQueue(),
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("デッドレターキューの宣言に失敗: %s: %w", cfg.DeadLetterQueue(), err)
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue(), "", cfg.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("デッドレターキューのバインドに失敗: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		amqp.Table{"x-dead-letter-exchange": cfg.DeadLetterExchange()},
	); err != nil {
		return fmt.Errorf("キューの宣言に失敗: %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.BindingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("キューのバインドに失敗: %s -> %s: %w", cfg.Queue, cfg.Exchange, err)
	}
	return nil
}
