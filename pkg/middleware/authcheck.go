package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/reminder/pkg/httpclient"
)

// authCheckResponse は認証チェックエンドポイントのレスポンス。
type authCheckResponse struct {
	Success bool `json:"success"`
}

// AuthCheck は認証サービスのpathにトークンを問い合わせるGinミドルウェアを返す。
// success=falseまたは問い合わせ自体の失敗は、後段に渡さずに401で拒否する。
func AuthCheck(client *httpclient.Client, path string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := http.Header{}
		if token := c.GetHeader(HeaderAccessToken); token != "" {
			header.Set(HeaderAccessToken, token)
		}

		var resp authCheckResponse
		if err := client.GetJSONWithHeader(c.Request.Context(), path, header, &resp); err != nil {
			logger.InfoContext(c.Request.Context(), "認証チェックに失敗しました", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorised"})
			return
		}
		if !resp.Success {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorised"})
			return
		}
		c.Next()
	}
}
