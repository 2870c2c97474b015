package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"strings"
	"time"
)

// 既定値。
const (
	DefaultMaxAttempts = 3
	DefaultLeaseTTL    = time.Minute
)

// ServiceConfig はServiceの業務ルール設定。
type ServiceConfig struct {
	// MaxAttempts は配信失敗をFAILEDとするまでの試行回数。
	MaxAttempts int
	// LeaseTTL は配信リースの有効期間。メール送信のタイムアウトより長くする。
	LeaseTTL time.Duration
}

// ストアはnotification_timeをUnixナノ秒で保持するため、int64で表せる範囲に限る。
var (
	minNotificationTime = time.Unix(0, math.MinInt64).UTC()
	maxNotificationTime = time.Unix(0, math.MaxInt64).UTC()
)

// Service はチケットの作成・取得・結果記録を担う業務ロジック。
type Service struct {
	store  *TicketStore
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService は新しいServiceを生成する。設定値が0以下の場合は既定値を使う。
func NewService(store *TicketStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	return &Service{store: store, cfg: cfg, logger: logger}
}

// MaxAttempts は設定済みの試行上限を返す。
func (s *Service) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

// CreateNotification は要求を検証し、PENDINGのチケットを作成する。
func (s *Service) CreateNotification(ctx context.Context, req CreateRequest) (Ticket, error) {
	nt, err := validateCreateRequest(req)
	if err != nil {
		return Ticket{}, err
	}

	t, err := s.store.Create(ctx, nt)
	if err != nil {
		return Ticket{}, err
	}
	s.logger.InfoContext(ctx, "チケットを作成しました",
		slog.String("ticket_id", t.ID),
		slog.Time("notification_time", t.NotificationTime),
	)
	return t, nil
}

// GetTicket はIDでチケットを取得する。
func (s *Service) GetTicket(ctx context.Context, id string) (Ticket, error) {
	return s.store.Get(ctx, id)
}

// FetchDue はasOf時点で配信期限を迎えたPENDINGのチケットを返す。
func (s *Service) FetchDue(ctx context.Context, asOf time.Time) ([]Ticket, error) {
	return s.store.GetDue(ctx, StatusPending, asOf)
}

// ClaimForDelivery はチケットの配信リースを取得する。取得できた場合のみ送信してよい。
func (s *Service) ClaimForDelivery(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	return s.store.Claim(ctx, id, owner, now, s.cfg.LeaseTTL)
}

// RecordOutcome は配信試行の結果を記録する。
// 成功時はSUCCESS、失敗時は試行上限まではPENDINGのまま、上限に達したらFAILEDにする。
func (s *Service) RecordOutcome(ctx context.Context, id string, succeeded bool, reason string) (Ticket, error) {
	if succeeded {
		return s.store.UpdateStatus(ctx, id, StatusSuccess)
	}

	t, err := s.store.RecordFailure(ctx, id, s.cfg.MaxAttempts, reason)
	if err != nil {
		return t, err
	}
	if t.Status == StatusFailed {
		s.logger.WarnContext(ctx, "試行上限に達したためチケットを失敗にしました",
			slog.String("ticket_id", t.ID),
			slog.Int("attempts", t.Attempts),
			slog.String("last_error", t.LastError),
		)
	}
	return t, nil
}

// validateCreateRequest は必須フィールドと日時・アドレスの形式を検証する。
func validateCreateRequest(req CreateRequest) (NewTicket, error) {
	required := []struct {
		field string
		value string
	}{
		{"recipientEmail", req.RecipientEmail},
		{"subject", req.Subject},
		{"content", req.Content},
		{"notificationTime", req.NotificationTime},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewTicket{}, &ValidationError{Field: r.field, Reason: "必須です"}
		}
	}

	if _, err := mail.ParseAddress(req.RecipientEmail); err != nil {
		return NewTicket{}, &ValidationError{Field: "recipientEmail", Reason: fmt.Sprintf("メールアドレスとして解釈できません: %v", err)}
	}

	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.NotificationTime))
	if err != nil {
		return NewTicket{}, &ValidationError{Field: "notificationTime", Reason: "RFC3339形式の日時が必要です"}
	}
	if at.Before(minNotificationTime) || at.After(maxNotificationTime) {
		return NewTicket{}, &ValidationError{
			Field:  "notificationTime",
			Reason: fmt.Sprintf("%sから%sの範囲で指定してください", minNotificationTime.Format(time.RFC3339), maxNotificationTime.Format(time.RFC3339)),
		}
	}

	return NewTicket{
		RecipientEmail:   req.RecipientEmail,
		Subject:          req.Subject,
		Content:          req.Content,
		NotificationTime: at,
	}, nil
}
