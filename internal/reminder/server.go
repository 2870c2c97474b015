package reminder

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/reminder/pkg/middleware"
)

// Server はリマインダーサービスのHTTPサーバー。
// チケット作成の同期エントリポイントを提供する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// service はチケットの業務ロジック。
	service *Service
	// logger は構造化ロガー。
	logger *slog.Logger
	// jwtSecret が空でなければAPIにJWT認証をかける。
	jwtSecret string
}

// NewServer は新しいリマインダーサーバーを生成する。
// jwtSecretが空の場合、APIは認証なしで公開される。
func NewServer(service *Service, jwtSecret string, logger *slog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		service:   service,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
	s.setupRoutes()

	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	if s.jwtSecret != "" {
		api.Use(middleware.JWTAuth(s.jwtSecret))
	}
	{
		tickets := api.Group("/tickets")
		{
			// チケット作成
			tickets.POST("", s.handleCreate())
			// チケット取得
			tickets.GET("/:id", s.handleGet())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "reminder"})
	})
}

// handleCreate はチケットを作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, failure("リクエストが不正です", err))
			return
		}

		t, err := s.service.CreateNotification(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				c.JSON(http.StatusBadRequest, failure("リマインダーの登録内容が不正です", err))
				return
			}
			s.logger.ErrorContext(c.Request.Context(), "チケット作成エラー",
				slog.String("user_id", middleware.GetUserID(c)),
				slog.Any("error", err),
			)
			c.JSON(http.StatusInternalServerError, failure("リマインダーを登録できませんでした", nil))
			return
		}

		s.logger.InfoContext(c.Request.Context(), "HTTPでチケットを受け付けました",
			slog.String("ticket_id", t.ID),
			slog.String("user_id", middleware.GetUserID(c)),
		)
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data":    t,
			"message": "リマインダーを登録しました",
			"err":     gin.H{},
		})
	}
}

// handleGet はIDでチケットを返すハンドラ。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := s.service.GetTicket(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, failure("チケットが見つかりません", nil))
			return
		}
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "チケット取得エラー", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, failure("チケットを取得できませんでした", nil))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    t,
			"message": "",
			"err":     gin.H{},
		})
	}
}

// failure は失敗時のレスポンスボディを組み立てる。内部エラーの詳細は含めない。
func failure(message string, err error) gin.H {
	detail := gin.H{}
	if err != nil {
		detail["message"] = err.Error()
	}
	return gin.H{
		"success": false,
		"data":    gin.H{},
		"message": message,
		"err":     detail,
	}
}
