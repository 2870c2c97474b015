// Package event はメッセージバスを流れるイベントの型とエンコード/デコードを提供する。
//
// イベントは閉じた集合（CreateTicketData, SendBasicMailData）として定義され、
// Handler インターフェースのメソッドと1対1に対応する。新しいイベントを追加する
// 場合は Handler にもメソッドを追加する必要があるため、ハンドラの実装漏れは
// コンパイルエラーとして検出される。
package event

import (
	"context"
	"encoding/json"
)

// Tag はイベントの種類を表す。エンベロープの service フィールドに格納される。
type Tag string

const (
	// TagCreateTicket は通知チケットの作成を要求するイベント。
	TagCreateTicket Tag = "CREATE_TICKET"
	// TagSendBasicMail はチケットを作らずにメールを即時送信するイベント。
	TagSendBasicMail Tag = "SEND_BASIC_MAIL"
)

// Envelope はバスメッセージのJSON構造。
type Envelope struct {
	// Service はイベントタグ。
	Service Tag `json:"service"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
}

// Handler はすべてのイベント種別に対する処理を束ねるインターフェース。
type Handler interface {
	// HandleCreateTicket はCREATE_TICKETイベントを処理する。
	HandleCreateTicket(ctx context.Context, data CreateTicketData) error
	// HandleSendBasicMail はSEND_BASIC_MAILイベントを処理する。
	HandleSendBasicMail(ctx context.Context, data SendBasicMailData) error
}

// Event はデコード済みのイベント。パッケージ外では実装できない。
type Event interface {
	// Tag はイベントタグを返す。
	Tag() Tag
	// Dispatch はイベント種別に対応するHandlerのメソッドを呼び出す。
	Dispatch(ctx context.Context, h Handler) error

	sealed()
}

// CreateTicketData はCREATE_TICKETイベントのデータ。
type CreateTicketData struct {
	// RecipientEmail は通知先のメールアドレス。
	RecipientEmail string `json:"recipientEmail"`
	// Subject はメールの件名。
	Subject string `json:"subject"`
	// Content はメール本文。
	Content string `json:"content"`
	// NotificationTime は配信可能になる日時（RFC3339形式）。
	NotificationTime string `json:"notificationTime"`
}

// Tag はTagCreateTicketを返す。
func (CreateTicketData) Tag() Tag { return TagCreateTicket }

// Dispatch はHandleCreateTicketを呼び出す。
func (d CreateTicketData) Dispatch(ctx context.Context, h Handler) error {
	return h.HandleCreateTicket(ctx, d)
}

func (CreateTicketData) sealed() {}

// SendBasicMailData はSEND_BASIC_MAILイベントのデータ。
type SendBasicMailData struct {
	// From は送信元アドレス。空の場合は設定済みの既定値を使う。
	From string `json:"from"`
	// To は送信先アドレス。
	To string `json:"to"`
	// Subject はメールの件名。
	Subject string `json:"subject"`
	// Body はメール本文。
	Body string `json:"body"`
}

// Tag はTagSendBasicMailを返す。
func (SendBasicMailData) Tag() Tag { return TagSendBasicMail }

// Dispatch はHandleSendBasicMailを呼び出す。
func (d SendBasicMailData) Dispatch(ctx context.Context, h Handler) error {
	return h.HandleSendBasicMail(ctx, d)
}

func (SendBasicMailData) sealed() {}
