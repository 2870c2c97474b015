package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/reminder/pkg/event"
	"github.com/nao1215/reminder/pkg/mail"
)

func TestEventHandlerCreateTicket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("正しいイベントからチケットを作成できること", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t, ServiceConfig{})
		h := NewEventHandler(svc, &fakeTransport{}, time.Second)

		err := event.CreateTicketData{
			RecipientEmail:   "a@b.com",
			Subject:          "件名",
			Content:          "本文",
			NotificationTime: "2030-01-01T00:00:00Z",
		}.Dispatch(ctx, h)
		if err != nil {
			t.Fatalf("HandleCreateTicket()でエラーが発生: %v", err)
		}

		due, err := svc.FetchDue(ctx, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("FetchDue()でエラーが発生: %v", err)
		}
		if len(due) != 1 || due[0].RecipientEmail != "a@b.com" {
			t.Errorf("配信対象 = %+v, want a@b.comのチケット1件", due)
		}
	})

	t.Run("検証エラーはErrMalformedとして返すこと", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t, ServiceConfig{})
		h := NewEventHandler(svc, &fakeTransport{}, time.Second)

		err := h.HandleCreateTicket(ctx, event.CreateTicketData{
			RecipientEmail:   "a@b.com",
			Subject:          "件名",
			Content:          "本文",
			NotificationTime: "来週",
		})
		if !errors.Is(err, event.ErrMalformed) || !errors.Is(err, ErrValidation) {
			t.Errorf("err = %v, want ErrMalformedかつErrValidation", err)
		}
	})

	t.Run("永続化エラーはErrMalformedにしないこと", func(t *testing.T) {
		t.Parallel()

		svc, _, db := newTestService(t, ServiceConfig{})
		db.Close()
		h := NewEventHandler(svc, &fakeTransport{}, time.Second)

		err := h.HandleCreateTicket(ctx, event.CreateTicketData{
			RecipientEmail:   "a@b.com",
			Subject:          "件名",
			Content:          "本文",
			NotificationTime: "2030-01-01T00:00:00Z",
		})
		if !errors.Is(err, ErrPersistence) || errors.Is(err, event.ErrMalformed) {
			t.Errorf("err = %v, want ErrPersistenceのみ", err)
		}
	})
}

func TestEventHandlerSendBasicMail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("チケットを作らずに即時送信すること", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t, ServiceConfig{})
		transport := &fakeTransport{}
		h := NewEventHandler(svc, transport, time.Second)

		err := h.HandleSendBasicMail(ctx, event.SendBasicMailData{
			From:    "ops@example.com",
			To:      "a@b.com",
			Subject: "件名",
			Body:    "本文",
		})
		if err != nil {
			t.Fatalf("HandleSendBasicMail()でエラーが発生: %v", err)
		}
		want := mail.Message{From: "ops@example.com", To: "a@b.com", Subject: "件名", Body: "本文"}
		if transport.total() != 1 || transport.sent[0] != want {
			t.Errorf("送信内容 = %+v, want %+v", transport.sent, want)
		}

		due, _ := svc.FetchDue(ctx, time.Now().Add(24*time.Hour))
		if len(due) != 0 {
			t.Errorf("チケット数 = %d, want 0", len(due))
		}
	})

	t.Run("送信先がない場合はErrMalformedを返すこと", func(t *testing.T) {
		t.Parallel()

		transport := &fakeTransport{}
		h := NewEventHandler(nil, transport, time.Second)

		err := h.HandleSendBasicMail(ctx, event.SendBasicMailData{To: "  ", Subject: "件名"})
		if !errors.Is(err, event.ErrMalformed) {
			t.Errorf("err = %v, want ErrMalformed", err)
		}
		if transport.total() != 0 {
			t.Errorf("送信件数 = %d, want 0", transport.total())
		}
	})

	t.Run("送信失敗は一時的なエラーとして返すこと", func(t *testing.T) {
		t.Parallel()

		transport := &fakeTransport{send: func(context.Context, mail.Message) error {
			return mail.ErrDelivery
		}}
		h := NewEventHandler(nil, transport, time.Second)

		err := h.HandleSendBasicMail(ctx, event.SendBasicMailData{To: "a@b.com"})
		if !errors.Is(err, mail.ErrDelivery) || errors.Is(err, event.ErrMalformed) {
			t.Errorf("err = %v, want ErrDeliveryのみ", err)
		}
	})

	t.Run("送信にタイムアウトを設定すること", func(t *testing.T) {
		t.Parallel()

		transport := &fakeTransport{send: func(ctx context.Context, _ mail.Message) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("送信のコンテキストに期限がない")
			}
			return nil
		}}
		h := NewEventHandler(nil, transport, time.Second)

		if err := h.HandleSendBasicMail(ctx, event.SendBasicMailData{To: "a@b.com"}); err != nil {
			t.Fatalf("HandleSendBasicMail()でエラーが発生: %v", err)
		}
	})
}
