package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/reminder/pkg/event"
	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderRedeliveryCount は再投入の回数を運ぶメッセージヘッダー。
const HeaderRedeliveryCount = "x-redelivery-count"

// Outcome は1メッセージの処理結果。
type Outcome int

const (
	// OutcomeAcked は処理に成功しAckした。
	OutcomeAcked Outcome = iota
	// OutcomeDropped は未知のタグのためAckして破棄した。
	OutcomeDropped
	// OutcomeRedelivered は一時的な失敗のためコピーを再投入した。
	OutcomeRedelivered
	// OutcomeDeadLettered はデッドレターへ送った。
	OutcomeDeadLettered
	// OutcomeRequeued はシャットダウン中のためブローカーに戻した。
	OutcomeRequeued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcked:
		return "acked"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRedelivered:
		return "redelivered"
	case OutcomeDeadLettered:
		return "dead-lettered"
	case OutcomeRequeued:
		return "requeued"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Processor は受信したメッセージをデコードし、ハンドラに振り分けて
// Ack/Nackを決める。
type Processor struct {
	handler event.Handler
	ch      Channel
	cfg     Config
	logger  *slog.Logger
}

// NewProcessor は新しいProcessorを生成する。
// chは一時的な失敗時にコピーをcfg.Queueへ再投入するために使う。
func NewProcessor(handler event.Handler, ch Channel, cfg Config, logger *slog.Logger) *Processor {
	return &Processor{
		handler: handler,
		ch:      ch,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Process はdを1件処理し、結果を返す。
// ctxが終了していても処理中のメッセージは最後まで扱う。
func (p *Processor) Process(ctx context.Context, d amqp.Delivery) Outcome {
	count := redeliveryCount(d.Headers)
	logger := p.logger.With(
		slog.String("message_id", d.MessageId),
		slog.Int("redelivery_count", count),
	)

	e, err := event.Decode(d.Body)
	if err != nil {
		if errors.Is(err, event.ErrUnknownTag) {
			logger.WarnContext(ctx, "未知のイベントを破棄しました", slog.Any("error", err))
			p.ack(ctx, logger, d)
			return OutcomeDropped
		}
		logger.ErrorContext(ctx, "形式不正のメッセージをデッドレターへ送ります", slog.Any("error", err))
		p.deadLetter(ctx, logger, d)
		return OutcomeDeadLettered
	}
	logger = logger.With(slog.String("tag", string(e.Tag())))

	if err := p.dispatch(ctx, e); err != nil {
		if errors.Is(err, event.ErrMalformed) {
			logger.ErrorContext(ctx, "入力不正のメッセージをデッドレターへ送ります", slog.Any("error", err))
			p.deadLetter(ctx, logger, d)
			return OutcomeDeadLettered
		}
		return p.redeliver(ctx, logger, d, count, err)
	}

	logger.DebugContext(ctx, "メッセージを処理しました")
	p.ack(ctx, logger, d)
	return OutcomeAcked
}

// dispatch はハンドラのタイムアウトとパニックからの回復を伴ってeを振り分ける。
func (p *Processor) dispatch(ctx context.Context, e event.Event) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ハンドラがパニックしました: %v", r)
		}
	}()
	return e.Dispatch(ctx, p.handler)
}

// redeliver はカウンタを1増やしたコピーを再投入して元のメッセージをAckする。
// 上限を超えた場合や再投入に失敗した場合はデッドレターへ送る。
func (p *Processor) redeliver(ctx context.Context, logger *slog.Logger, d amqp.Delivery, count int, cause error) Outcome {
	next := count + 1
	if next > p.cfg.MaxRedeliveries {
		logger.ErrorContext(ctx, "再配送の上限に達したためデッドレターへ送ります",
			slog.Int("max_redeliveries", p.cfg.MaxRedeliveries),
			slog.Any("error", cause),
		)
		p.deadLetter(ctx, logger, d)
		return OutcomeDeadLettered
	}

	if p.cfg.RedeliveryDelay > 0 {
		timer := time.NewTimer(p.cfg.RedeliveryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if err := d.Nack(false, true); err != nil {
				logger.ErrorContext(ctx, "Nackに失敗しました", slog.Any("error", err))
			}
			return OutcomeRequeued
		case <-timer.C:
		}
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderRedeliveryCount] = int32(next)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := p.ch.PublishWithContext(pubCtx, "", p.cfg.Queue, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Type:         d.Type,
		Body:         d.Body,
	})
	if err != nil {
		logger.ErrorContext(ctx, "再投入に失敗したためデッドレターへ送ります",
			slog.Any("error", err),
			slog.Any("cause", cause),
		)
		p.deadLetter(ctx, logger, d)
		return OutcomeDeadLettered
	}

	logger.WarnContext(ctx, "一時的な失敗のため再投入しました",
		slog.Int("next_redelivery_count", next),
		slog.Any("error", cause),
	)
	p.ack(ctx, logger, d)
	return OutcomeRedelivered
}

func (p *Processor) ack(ctx context.Context, logger *slog.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		logger.ErrorContext(ctx, "Ackに失敗しました", slog.Any("error", err))
	}
}

func (p *Processor) deadLetter(ctx context.Context, logger *slog.Logger, d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		logger.ErrorContext(ctx, "Nackに失敗しました", slog.Any("error", err))
	}
}

// redeliveryCount はヘッダーから再投入の回数を読み取る。
func redeliveryCount(h amqp.Table) int {
	switch v := h[HeaderRedeliveryCount].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	}
	return 0
}
