package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig はSMTPサーバーへの接続設定。
type SMTPConfig struct {
	// Host はSMTPサーバーのホスト名。
	Host string
	// Port はSMTPサーバーのポート番号。
	Port int
	// Username は認証ユーザー名。空の場合は認証しない。
	Username string
	// Password は認証パスワード。
	Password string
	// From は既定の送信元アドレス。
	From string
}

// SMTPTransport はSMTPでメールを送信するTransport。
type SMTPTransport struct {
	cfg    SMTPConfig
	dialer *net.Dialer
}

// NewSMTPTransport は新しいSMTPTransportを生成する。
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{
		cfg:    cfg,
		dialer: &net.Dialer{},
	}
}

// Send はメールを1通送信する。ctxの期限が接続全体のデッドラインになる。
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := t.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: to=%s: %v", ErrDelivery, msg.To, err)
	}
	return nil
}

func (t *SMTPTransport) send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = t.cfg.From
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTPサーバーへの接続に失敗: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("デッドラインの設定に失敗: %w", err)
		}
	}

	// ctxのキャンセルで接続を閉じ、ブロック中の読み書きを解除する
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTPクライアントの生成に失敗: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLSに失敗: %w", err)
		}
	}
	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP認証に失敗: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROMに失敗: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("RCPT TOに失敗: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATAに失敗: %w", err)
	}
	if _, err := w.Write(buildMessage(from, msg, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("本文の書き込みに失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("本文の送信に失敗: %w", err)
	}
	return client.Quit()
}

// buildMessage はRFC 5322形式のメッセージを組み立てる。
func buildMessage(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// sanitizeHeader はヘッダーインジェクションを防ぐため改行を除去する。
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(v)
}
