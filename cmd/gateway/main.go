// 認証ゲートウェイのエントリポイント。
// レート制限とアクセストークンの確認を行い、リマインダーサービスへ転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/reminder/internal/config"
	"github.com/nao1215/reminder/internal/gateway"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Env, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := gateway.NewServer(gateway.Config{
		JWTSecret:   cfg.JWTSecret,
		TokenTTL:    cfg.TokenTTL,
		AuthURL:     cfg.AuthURL,
		ReminderURL: cfg.ReminderURL,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow,
		AuthTimeout: cfg.AuthTimeout,
		DevTokens:   cfg.Env != config.EnvProd,
	}, logger)

	srv := &http.Server{
		Addr:    net.JoinHostPort("", cfg.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Gatewayサービスを起動します", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Gatewayサービスの起動に失敗しました", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gatewayサービスの停止に失敗しました", slog.Any("error", err))
	}
	logger.Info("Gatewayサービスを停止しました")
}
