package mail

import (
	"context"
	"errors"
	"log/slog"
)

// ErrDelivery はメール送信の失敗を表す。タイムアウトも含む。
var ErrDelivery = errors.New("メール送信に失敗")

// Message は送信する1通のメール。
type Message struct {
	// From は送信元アドレス。空の場合はTransportの既定値を使う。
	From string
	// To は送信先アドレス。
	To string
	// Subject は件名。
	Subject string
	// Body は本文（text/plain）。
	Body string
}

// Transport は1通のメールを送信する。
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport は送信せずにログへ出力するだけのTransport。開発環境用。
type LogTransport struct {
	logger *slog.Logger
	from   string
}

// NewLogTransport は新しいLogTransportを生成する。
func NewLogTransport(logger *slog.Logger, from string) *LogTransport {
	return &LogTransport{logger: logger, from: from}
}

// Send はメッセージをログに出力する。
func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrDelivery, err)
	}
	from := msg.From
	if from == "" {
		from = t.from
	}
	t.logger.InfoContext(ctx, "メールを送信しました（ログ出力のみ）",
		slog.String("from", from),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
