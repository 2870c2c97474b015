package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/reminder/pkg/event"
	"github.com/nao1215/reminder/pkg/mail"
)

// EventHandler はバスイベントをServiceとTransportに振り分ける。
// 入力不正はevent.ErrMalformedでラップして返し、バス側で再配送せずに
// デッドレターへ送らせる。
type EventHandler struct {
	service     *Service
	transport   mail.Transport
	mailTimeout time.Duration
}

var _ event.Handler = (*EventHandler)(nil)

// NewEventHandler は新しいEventHandlerを生成する。
func NewEventHandler(service *Service, transport mail.Transport, mailTimeout time.Duration) *EventHandler {
	if mailTimeout <= 0 {
		mailTimeout = 10 * time.Second
	}
	return &EventHandler{service: service, transport: transport, mailTimeout: mailTimeout}
}

// HandleCreateTicket はチケットを作成する。
func (h *EventHandler) HandleCreateTicket(ctx context.Context, data event.CreateTicketData) error {
	_, err := h.service.CreateNotification(ctx, CreateRequest{
		RecipientEmail:   data.RecipientEmail,
		Subject:          data.Subject,
		Content:          data.Content,
		NotificationTime: data.NotificationTime,
	})
	if errors.Is(err, ErrValidation) {
		return fmt.Errorf("%w: %w", event.ErrMalformed, err)
	}
	return err
}

// HandleSendBasicMail はチケットを作らずにメールを即時送信する。
func (h *EventHandler) HandleSendBasicMail(ctx context.Context, data event.SendBasicMailData) error {
	if strings.TrimSpace(data.To) == "" {
		return fmt.Errorf("%w: %w", event.ErrMalformed, &ValidationError{Field: "to", Reason: "必須です"})
	}

	ctx, cancel := context.WithTimeout(ctx, h.mailTimeout)
	defer cancel()
	return h.transport.Send(ctx, mail.Message{
		From:    data.From,
		To:      data.To,
		Subject: data.Subject,
		Body:    data.Body,
	})
}
