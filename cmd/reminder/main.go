// リマインダーサービスのエントリポイント。
// チケット作成API、バスの購読、配信スケジューラを1プロセスで動かす。
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nao1215/reminder/internal/bus"
	"github.com/nao1215/reminder/internal/config"
	"github.com/nao1215/reminder/internal/reminder"
	"github.com/nao1215/reminder/pkg/mail"
	"github.com/nao1215/reminder/pkg/redislock"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/retry"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.LoadReminder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Env, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("リマインダーサービスが異常終了しました", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Reminder, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", cfg.Database.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := reminder.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	service := reminder.NewService(reminder.NewTicketStore(db), reminder.ServiceConfig{
		MaxAttempts: cfg.Sweep.MaxAttempts,
		LeaseTTL:    cfg.Sweep.LeaseTTL,
	}, logger)

	transport := newTransport(cfg.SMTP, logger)

	var locker reminder.Locker
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		locker = redislock.New(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL)
		logger.Info("Redisのスイープロックを使用します", slog.String("addr", cfg.Redis.Addr))
	}

	scheduler := reminder.NewScheduler(service, transport, locker, reminder.SchedulerConfig{
		Interval:    cfg.Sweep.Interval,
		Workers:     cfg.Sweep.Workers,
		MailTimeout: cfg.Sweep.MailTimeout,
		RunOnStart:  cfg.Sweep.RunOnStart,
	}, logger.With(slog.String("component", "scheduler")))

	var consumer *bus.Consumer
	if cfg.RabbitMQ.Enabled() {
		conn, c, err := newConsumer(ctx, cfg.RabbitMQ, reminder.NewEventHandler(service, transport, cfg.Sweep.MailTimeout), logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer c.Close()
		consumer = c
	} else {
		logger.Info("RABBITMQ_HOSTが未設定のためバスを購読しません")
	}

	srv := &http.Server{
		Addr:    net.JoinHostPort("", cfg.HTTP.Port),
		Handler: reminder.NewServer(service, cfg.HTTP.JWTSecret, logger).Handler(),
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Go(func() {
		if err := scheduler.Run(ctx); err != nil {
			errCh <- fmt.Errorf("スケジューラ: %w", err)
		}
	})
	if consumer != nil {
		wg.Go(func() {
			if err := consumer.Run(ctx); err != nil {
				errCh <- fmt.Errorf("バス購読: %w", err)
				stop()
			}
		})
	}
	wg.Go(func() {
		logger.Info("リマインダーサービスを起動します", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTPサーバー: %w", err)
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("シャットダウンを開始します")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTPサーバーの停止に失敗しました", slog.Any("error", err))
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	logger.Info("リマインダーサービスを停止しました")
	return errors.Join(errs...)
}

// newTransport はSMTPが設定されていればSMTP、なければログ出力のTransportを返す。
func newTransport(cfg config.SMTP, logger *slog.Logger) mail.Transport {
	if !cfg.Enabled() {
		logger.Info("SMTP_HOSTが未設定のためメールはログ出力のみです")
		return mail.NewLogTransport(logger, cfg.From)
	}
	return mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

// newConsumer はブローカーに接続し、購読の準備を済ませたConsumerを返す。
func newConsumer(ctx context.Context, cfg config.RabbitMQ, handler *reminder.EventHandler, logger *slog.Logger) (*amqp.Connection, *bus.Consumer, error) {
	busCfg := bus.Config{
		URL:             cfg.URL(),
		Exchange:        cfg.Exchange,
		Queue:           cfg.Queue,
		BindingKey:      cfg.BindingKey,
		Prefetch:        cfg.Prefetch,
		MaxRedeliveries: cfg.MaxRedeliveries,
		RedeliveryDelay: cfg.RedeliveryDelay,
		HandlerTimeout:  cfg.HandlerTimeout,
		Retry: retry.Strategy{
			Attempts: cfg.RetryAttempts,
			Delay:    cfg.RetryDelay,
			Backoff:  cfg.RetryBackoff,
		},
	}

	busLogger := logger.With(slog.String("component", "bus"))
	conn, err := bus.Dial(ctx, busCfg, busLogger)
	if err != nil {
		return nil, nil, err
	}
	consumer, err := bus.NewConsumer(conn, handler, busCfg, busLogger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, consumer, nil
}
