package reminder

import (
	"fmt"
	"time"
)

// Status はチケットの配信状態。
type Status string

const (
	// StatusPending は配信待ち（再試行待ちを含む）。
	StatusPending Status = "PENDING"
	// StatusSuccess は配信済み。終端状態。
	StatusSuccess Status = "SUCCESS"
	// StatusFailed は試行上限に達した配信失敗。終端状態。
	StatusFailed Status = "FAILED"
)

// Terminal は終端状態であればtrueを返す。
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid は定義済みの状態であればtrueを返す。
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// ParseStatus は文字列を状態に変換する。
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("不明なステータス: %q", v)
	}
	return s, nil
}

// Ticket は1件の遅延通知とその配信結果。
type Ticket struct {
	// ID はチケットの一意識別子（UUID）。
	ID string `json:"id"`
	// RecipientEmail は通知先のメールアドレス。
	RecipientEmail string `json:"recipientEmail"`
	// Subject はメールの件名。
	Subject string `json:"subject"`
	// Content はメール本文。
	Content string `json:"content"`
	// NotificationTime は配信可能になる日時。
	NotificationTime time.Time `json:"notificationTime"`
	// Status は配信状態。
	Status Status `json:"status"`
	// Attempts は失敗した配信試行の回数。
	Attempts int `json:"attempts"`
	// LastError は最後の配信失敗の理由。
	LastError string `json:"lastError,omitempty"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewTicket はTicketStore.Createに渡す作成時のフィールド。
type NewTicket struct {
	RecipientEmail   string
	Subject          string
	Content          string
	NotificationTime time.Time
}

// CreateRequest はチケット作成要求。HTTPとバスイベントで共通。
type CreateRequest struct {
	// RecipientEmail は通知先のメールアドレス。
	RecipientEmail string `json:"recipientEmail"`
	// Subject はメールの件名。
	Subject string `json:"subject"`
	// Content はメール本文。
	Content string `json:"content"`
	// NotificationTime は配信可能になる日時（RFC3339形式）。
	NotificationTime string `json:"notificationTime"`
}
