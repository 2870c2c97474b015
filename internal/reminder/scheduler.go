package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/reminder/pkg/mail"
	"golang.org/x/sync/errgroup"
)

// SweepState はスケジューラの状態。
type SweepState int32

const (
	// StateIdle は次のティックを待っている状態。
	StateIdle SweepState = iota
	// StateFetching は配信対象チケットを取得している状態。
	StateFetching
	// StateDispatching は配信を試行している状態。
	StateDispatching
)

func (s SweepState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateDispatching:
		return "DISPATCHING"
	}
	return fmt.Sprintf("SweepState(%d)", int32(s))
}

// Locker はレプリカ間でスイープの同時実行を抑止するロック。
// 正しさはチケット単位の配信リースで担保されるため、ロックは重複作業の削減のみを目的とする。
type Locker interface {
	// TryLock はロックの取得を試みる。取得できた場合はreleaseを必ず呼び出す。
	TryLock(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// SchedulerConfig はスケジューラの設定。
type SchedulerConfig struct {
	// Interval はスイープの間隔。
	Interval time.Duration
	// Workers は同時に配信を試行するチケット数の上限。
	Workers int
	// MailTimeout は1通の送信に許す時間。超過は配信失敗として扱う。
	MailTimeout time.Duration
	// RunOnStart がtrueの場合、起動直後に1回スイープする。
	RunOnStart bool
}

// SweepResult は1回のスイープの集計。
type SweepResult struct {
	// Due は配信期限を迎えていたチケット数。
	Due int
	// Sent は送信に成功し、SUCCESSを記録したチケット数。
	Sent int
	// Failed は送信に失敗したチケット数（再試行待ちとFAILEDの合計）。
	Failed int
	// Skipped は他のスケジューラが配信中、または既に終端状態だったチケット数。
	Skipped int
	// Errors はストアのエラーで処理できなかったチケット数。
	Errors int
}

// Scheduler は定期的に配信期限を迎えたチケットを取得し、メール送信を試行する。
type Scheduler struct {
	service   *Service
	transport mail.Transport
	locker    Locker
	cfg       SchedulerConfig
	logger    *slog.Logger
	// owner は配信リースに記録するこのスケジューラの識別子。
	owner string
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time

	// running はスイープ実行中に保持される。
	running sync.Mutex
	state   atomic.Int32
}

// NewScheduler は新しいSchedulerを生成する。lockerはnilでもよい。
func NewScheduler(service *Service, transport mail.Transport, locker Locker, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	return &Scheduler{
		service:   service,
		transport: transport,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
		owner:     uuid.New().String(),
		now:       time.Now,
	}
}

// State は現在の状態を返す。
func (s *Scheduler) State() SweepState {
	return SweepState(s.state.Load())
}

// Run はctxがキャンセルされるまで一定間隔でスイープを実行する。
// キャンセル時に実行中のスイープがあれば、そのバッチの完了を待ってから戻る。
// スイープ中に発火したティックは捨てられ、スイープが重なることはない。
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "スケジューラを開始します",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("workers", s.cfg.Workers),
		slog.Int("max_attempts", s.service.MaxAttempts()),
		slog.String("owner", s.owner),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スケジューラを停止しました")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce はシャットダウン信号から切り離したコンテキストで1回スイープする。
func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.Sweep(context.WithoutCancel(ctx))
	if errors.Is(err, ErrSweepInProgress) {
		s.logger.DebugContext(ctx, "他のスイープが実行中のためスキップしました")
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "スイープに失敗しました", slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "スイープが完了しました",
		slog.Int("due", result.Due),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)
}

// Sweep は1回のスイープを実行する。実行中に呼ばれた場合はErrSweepInProgressを返す。
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.TryLock() {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx)
		switch {
		case err != nil:
			// ロックが使えなくても配信リースで二重送信は防げるため続行する
			s.logger.WarnContext(ctx, "スイープロックを取得できません", slog.Any("error", err))
		case !acquired:
			return SweepResult{}, ErrSweepInProgress
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.WarnContext(ctx, "スイープロックの解放に失敗しました", slog.Any("error", err))
				}
			}()
		}
	}

	defer s.state.Store(int32(StateIdle))
	s.state.Store(int32(StateFetching))

	tickets, err := s.service.FetchDue(ctx, s.now())
	if err != nil {
		return SweepResult{}, fmt.Errorf("配信対象チケットの取得に失敗: %w", err)
	}

	s.state.Store(int32(StateDispatching))

	var sent, failed, skipped, errs atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, t := range tickets {
		g.Go(func() error {
			switch s.deliver(ctx, t) {
			case outcomeSent:
				sent.Add(1)
			case outcomeFailed:
				failed.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeError:
				errs.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{
		Due:     len(tickets),
		Sent:    int(sent.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
		Errors:  int(errs.Load()),
	}, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeError
)

// deliver は1件のチケットについてリース取得、送信、結果記録を行う。
// 他のチケットの処理に影響しないよう、パニックも含めてここで閉じる。
func (s *Scheduler) deliver(ctx context.Context, t Ticket) outcome {
	logger := s.logger.With(slog.String("ticket_id", t.ID))

	claimed, err := s.service.ClaimForDelivery(ctx, t.ID, s.owner, s.now())
	if err != nil {
		logger.ErrorContext(ctx, "配信リースの取得に失敗しました", slog.Any("error", err))
		return outcomeError
	}
	if !claimed {
		logger.DebugContext(ctx, "他のスケジューラが配信中のためスキップしました")
		return outcomeSkipped
	}

	sendErr := s.send(ctx, t)
	reason := ""
	if sendErr != nil {
		reason = sendErr.Error()
		logger.WarnContext(ctx, "メール送信に失敗しました", slog.Any("error", sendErr))
	}

	updated, err := s.service.RecordOutcome(ctx, t.ID, sendErr == nil, reason)
	switch {
	case errors.Is(err, ErrConflict):
		logger.WarnContext(ctx, "チケットは既に終端状態でした", slog.String("status", string(updated.Status)))
		return outcomeSkipped
	case err != nil:
		// 送信済みの場合はリース期限切れ後に再送され得る（at-least-once）
		logger.ErrorContext(ctx, "配信結果の記録に失敗しました",
			slog.Bool("sent", sendErr == nil),
			slog.Any("error", err),
		)
		return outcomeError
	case sendErr != nil:
		return outcomeFailed
	}
	return outcomeSent
}

// send はタイムアウト付きでメールを送信する。Transportのパニックは送信失敗として扱う。
func (s *Scheduler) send(ctx context.Context, t Ticket) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", mail.ErrDelivery, r)
		}
	}()

	return s.transport.Send(ctx, mail.Message{
		To:      t.RecipientEmail,
		Subject: t.Subject,
		Body:    t.Content,
	})
}
