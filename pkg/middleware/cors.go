package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS はクロスオリジンリクエストを許可するGinミドルウェアを返す。
// allowedOriginsが空の場合はすべてのオリジンを許可する
// （通知ビューアはローカルファイルやモバイルWebViewから接続するため、
// オリジンを事前に列挙できない）。空でない場合は列挙されたオリジンのみ許可する。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		// レスポンスはOriginヘッダーに依存するため、中間キャッシュが
		// 別オリジンへの応答を使い回さないようVaryを常に設定する
		c.Header("Vary", "Origin")

		origin := c.GetHeader("Origin")
		_, allowed := originsSet[origin]
		if len(allowedOrigins) == 0 {
			allowed = origin != ""
		}
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
