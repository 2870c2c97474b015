package reminder

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/reminder/pkg/mail"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB はマイグレーション済みのインメモリSQLiteを返す。
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	// :memory: は接続ごとに別のDBになるため1接続に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db, discardLogger()); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	return db
}

// newTestService はテスト用のServiceとそのストアを返す。
func newTestService(t *testing.T, cfg ServiceConfig) (*Service, *TicketStore, *sql.DB) {
	t.Helper()

	db := newTestDB(t)
	store := NewTicketStore(db)
	return NewService(store, cfg, discardLogger()), store, db
}

// mustCreate はチケットを作成し、失敗した場合はテストを中断する。
func mustCreate(t *testing.T, s *Service, email string, at time.Time) Ticket {
	t.Helper()

	tk, err := s.CreateNotification(context.Background(), CreateRequest{
		RecipientEmail:   email,
		Subject:          "件名 " + email,
		Content:          "本文 " + email,
		NotificationTime: at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("CreateNotification()でエラーが発生: %v", err)
	}
	return tk
}

// fakeTransport は送信内容を記録し、sendで結果を差し替えられるmail.Transport。
type fakeTransport struct {
	mu   sync.Mutex
	sent []mail.Message
	send func(ctx context.Context, msg mail.Message) error
}

func (f *fakeTransport) Send(ctx context.Context, msg mail.Message) error {
	var err error
	if f.send != nil {
		err = f.send(ctx, msg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return err
}

func (f *fakeTransport) sentTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.To == addr {
			n++
		}
	}
	return n
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// newTestScheduler はnowを固定したSchedulerを返す。
func newTestScheduler(s *Service, transport mail.Transport, locker Locker, cfg SchedulerConfig, now time.Time) *Scheduler {
	sched := NewScheduler(s, transport, locker, cfg, discardLogger())
	sched.now = func() time.Time { return now }
	return sched
}
