package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Recovery はハンドラ内のパニックから回復するGinミドルウェアを返す。
// パニック発生時はリクエスト情報とパニック値をログに出力し、
// 呼び出し元には500を返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PANIC] %s %s from %s: %v",
					c.Request.Method, c.Request.URL.Path, c.ClientIP(), r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "内部サーバーエラーが発生しました",
				})
			}
		}()
		c.Next()
	}
}
