package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/reminder/pkg/httpclient"
	"github.com/nao1215/reminder/pkg/middleware"
)

// authCheckPath は認証エンドポイントのパス。
const authCheckPath = "/api/v1/isAuthenticated"

// Config はゲートウェイの設定。
type Config struct {
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
	// AuthURL は認証エンドポイントを持つサービスのベースURL。
	AuthURL string
	// ReminderURL はリマインダーサービスのベースURL。
	ReminderURL string
	// RateLimit はRateWindowあたりにクライアントが送れるリクエスト数。
	RateLimit int
	// RateWindow はレート制限の単位時間。
	RateWindow time.Duration
	// AuthTimeout は認証エンドポイント呼び出しのタイムアウト。
	AuthTimeout time.Duration
	// DevTokens がtrueの場合、開発用トークン発行エンドポイントを公開する。
	DevTokens bool
}

// Server は認証ゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はゲートウェイの設定。
	cfg Config
	// proxyClient は転送先への通信に使うHTTPクライアント。
	proxyClient *http.Client
	// logger は構造化ロガー。
	logger *slog.Logger
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())

	s := &Server{
		router:      router,
		cfg:         cfg,
		proxyClient: &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
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
	if s.cfg.DevTokens {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	s.router.GET(authCheckPath, s.handleIsAuthenticated())

	// 認証必須の転送先
	authClient := httpclient.New(s.cfg.AuthURL, httpclient.WithTimeout(s.cfg.AuthTimeout))
	reminder := s.router.Group("/reminderservice")
	reminder.Use(middleware.RateLimit(s.cfg.RateLimit, s.cfg.RateWindow))
	reminder.Use(middleware.AuthCheck(authClient, authCheckPath, s.logger))
	reminder.Any("/*path", s.handleProxy(s.cfg.ReminderURL))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// devTokenRequest は開発用トークン発行のリクエストボディ。
type devTokenRequest struct {
	Email string `json:"email"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 本番環境では登録しない。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
				return
			}
		}
		if req.Email == "" {
			req.Email = "dev@localhost"
		}

		userID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+req.Email)).String()
		token, err := middleware.GenerateJWT(s.cfg.JWTSecret, userID, req.Email, s.cfg.TokenTTL)
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "JWT生成に失敗しました", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"user_id":    userID,
			"expires_in": int(s.cfg.TokenTTL.Seconds()),
		})
	}
}

// handleIsAuthenticated はx-access-tokenヘッダーのトークンを検証するハンドラを返す。
func (s *Server) handleIsAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(middleware.HeaderAccessToken))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "トークンがありません"})
			return
		}

		claims, err := middleware.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "トークンが無効です"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": claims.UserID})
	}
}

// handleProxy はbaseURL配下にリクエストを転送するハンドラを返す。
// /reminderservice/api/v1/tickets は baseURL + /api/v1/tickets に転送される。
func (s *Server) handleProxy(baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := strings.TrimSuffix(baseURL, "/") + c.Param("path")
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, c.Request.Method, proxyURL)
	}
}

// doProxy はリクエストを内部サービスに転送する共通処理。
func (s *Server) doProxy(c *gin.Context, method, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}

	// 元のリクエストヘッダーを転送
	for _, h := range []string{"Content-Type", "Accept", middleware.HeaderAccessToken} {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "プロキシエラー",
			slog.String("url", url),
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}
