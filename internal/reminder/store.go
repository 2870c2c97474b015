package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	reminderdb "github.com/nao1215/reminder/internal/reminder/db"
)

// TicketStore はチケットの永続化を担う。Serviceからのみ呼び出される。
// 日時はUTCのUNIXナノ秒で保存するため、比較と並び順は厳密。
type TicketStore struct {
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *reminderdb.Queries
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewTicketStore は新しいTicketStoreを生成する。
func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{
		queries: reminderdb.New(db),
		now:     time.Now,
	}
}

// Create はPENDING状態のチケットを新規作成する。
func (s *TicketStore) Create(ctx context.Context, nt NewTicket) (Ticket, error) {
	now := s.now().UTC()
	params := reminderdb.CreateTicketParams{
		ID:               uuid.New().String(),
		RecipientEmail:   nt.RecipientEmail,
		Subject:          nt.Subject,
		Content:          nt.Content,
		NotificationTime: nt.NotificationTime.UTC().UnixNano(),
		CreatedAt:        now.UnixNano(),
		UpdatedAt:        now.UnixNano(),
	}
	if err := s.queries.CreateTicket(ctx, params); err != nil {
		return Ticket{}, fmt.Errorf("%w: チケットの作成: %w", ErrPersistence, err)
	}

	return Ticket{
		ID:               params.ID,
		RecipientEmail:   params.RecipientEmail,
		Subject:          params.Subject,
		Content:          params.Content,
		NotificationTime: fromNanos(params.NotificationTime),
		Status:           StatusPending,
		CreatedAt:        fromNanos(params.CreatedAt),
		UpdatedAt:        fromNanos(params.UpdatedAt),
	}, nil
}

// Get はIDでチケットを取得する。
func (s *TicketStore) Get(ctx context.Context, id string) (Ticket, error) {
	row, err := s.queries.GetTicket(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: チケットの取得: %w", ErrPersistence, err)
	}
	return toTicket(row)
}

// GetDue は指定状態かつ通知日時がasOf以前のチケットを、通知日時の古い順に返す。
func (s *TicketStore) GetDue(ctx context.Context, status Status, asOf time.Time) ([]Ticket, error) {
	rows, err := s.queries.ListDueTickets(ctx, reminderdb.ListDueTicketsParams{
		Status: string(status),
		AsOf:   asOf.UTC().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: 配信対象チケットの取得: %w", ErrPersistence, err)
	}

	tickets := make([]Ticket, 0, len(rows))
	for _, row := range rows {
		t, err := toTicket(row)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// UpdateStatus はPENDINGのチケットの状態を更新する。
// 既に終端状態の場合はErrConflict、存在しない場合はErrNotFoundを返す。
// PENDINGへの更新は再試行可能な状態のまま更新日時だけを進める。
func (s *TicketStore) UpdateStatus(ctx context.Context, id string, status Status) (Ticket, error) {
	if !status.Valid() {
		return Ticket{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("不明なステータス %q", status)}
	}

	n, err := s.queries.UpdateTicketStatus(ctx, reminderdb.UpdateTicketStatusParams{
		Status:    string(status),
		UpdatedAt: s.now().UTC().UnixNano(),
		ID:        id,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: ステータスの更新: %w", ErrPersistence, err)
	}
	return s.afterConditionalUpdate(ctx, id, n)
}

// RecordFailure は配信失敗を1回記録する。試行回数がmaxAttemptsに達した場合は
// FAILEDへ、それ以外はPENDINGのまま再試行対象として残す。
func (s *TicketStore) RecordFailure(ctx context.Context, id string, maxAttempts int, reason string) (Ticket, error) {
	n, err := s.queries.RecordTicketFailure(ctx, reminderdb.RecordTicketFailureParams{
		MaxAttempts: int64(maxAttempts),
		LastError:   reason,
		UpdatedAt:   s.now().UTC().UnixNano(),
		ID:          id,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: 配信失敗の記録: %w", ErrPersistence, err)
	}
	return s.afterConditionalUpdate(ctx, id, n)
}

// Claim はPENDINGのチケットに期限付きの配信リースを取得する。
// 有効なリースを他のownerが保持している場合はfalseを返す。状態は変更しないため、
// リースを持ったまま停止しても期限切れ後に再び配信対象になる。
func (s *TicketStore) Claim(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) (bool, error) {
	n, err := s.queries.ClaimTicket(ctx, reminderdb.ClaimTicketParams{
		LeaseOwner: sql.NullString{String: owner, Valid: true},
		LeaseUntil: sql.NullInt64{Int64: now.Add(ttl).UTC().UnixNano(), Valid: true},
		ID:         id,
		Now:        sql.NullInt64{Int64: now.UTC().UnixNano(), Valid: true},
	})
	if err != nil {
		return false, fmt.Errorf("%w: 配信リースの取得: %w", ErrPersistence, err)
	}
	return n == 1, nil
}

// afterConditionalUpdate は条件付き更新の結果から最新のチケットまたはエラーを返す。
func (s *TicketStore) afterConditionalUpdate(ctx context.Context, id string, affected int64) (Ticket, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if affected == 0 {
		return t, fmt.Errorf("%w: id=%s status=%s", ErrConflict, id, t.Status)
	}
	return t, nil
}

func toTicket(row reminderdb.Ticket) (Ticket, error) {
	status, err := ParseStatus(row.Status)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: id=%s: %w", ErrPersistence, row.ID, err)
	}
	return Ticket{
		ID:               row.ID,
		RecipientEmail:   row.RecipientEmail,
		Subject:          row.Subject,
		Content:          row.Content,
		NotificationTime: fromNanos(row.NotificationTime),
		Status:           status,
		Attempts:         int(row.Attempts),
		LastError:        row.LastError,
		CreatedAt:        fromNanos(row.CreatedAt),
		UpdatedAt:        fromNanos(row.UpdatedAt),
	}, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
