package config

import (
	"io"
	"log/slog"
)

// NewLogger は実行環境に応じたロガーを生成する。
// local/devはテキスト形式でDEBUG以上、prodはJSON形式でINFO以上を出力する。
func NewLogger(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler
	switch env {
	case EnvProd:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}
