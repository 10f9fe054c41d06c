package notihub

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notihub/pkg/middleware"
	"github.com/nao1215/notihub/pkg/wsevent"
)

// Server は通知リレーサービスのHTTPサーバー。
// プロセス全体で共有する状態（ストア、ハブ、トークン）を起動時に
// 一度だけ構築し、各ハンドラへ参照として渡す。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は通知の永続化層。
	store *Store
	// hub は購読者レジストリとファンアウト配信。
	hub *Hub
	// token は共有認証トークン。
	token string
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しい通知リレーサーバーを生成する。
// SQLiteデータベースを開いてマイグレーションを適用する。
func NewServer(cfg Config) (*Server, error) {
	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, fmt.Errorf("トークンの解決に失敗: %w", err)
	}

	sqlDB, err := OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(nil))

	s := &Server{
		router: router,
		port:   cfg.Port,
		store:  NewStore(sqlDB),
		hub:    NewHub(),
		token:  token,
		db:     sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Run はハブのイベントループとHTTPサーバーを起動する。
func (s *Server) Run() error {
	go s.hub.Run(context.Background())
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	authorized := s.router.Group("/")
	authorized.Use(middleware.BearerAuth(s.token))
	{
		// 通知の送信とファンアウト配信
		authorized.POST("/send", s.handleSend())
		// 通知履歴の取得（新しい順）
		authorized.GET("/history", s.handleHistory())
		// 通知の既読化
		authorized.POST("/mark-seen", s.handleMarkSeen())
		// 全通知の削除
		authorized.DELETE("/notifications", s.handleClear())
	}

	// WebSocket購読。アップグレードリクエストには任意のヘッダーを
	// 付与できないため、認証はクエリパラメータで行う
	s.router.GET("/ws", s.handleWS())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notihub"})
	})
}

// sendRequest は通知送信リクエストのJSON構造。
type sendRequest struct {
	// Title は通知のタイトル。省略可能。
	Title string `json:"title"`
	// Text は通知の本文。空白のみの場合は拒否される。
	Text string `json:"text"`
}

// handleSend は通知を永続化し、接続中の全購読者へ配信するハンドラを返す。
// 永続化と配信はトランザクションで結ばれていない。永続化直後に
// プロセスが落ちた場合、その通知は記録されるが配信はされない。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}

		n, err := s.store.Insert(c.Request.Context(), req.Title, req.Text)
		if err != nil {
			if errors.Is(err, ErrEmptyText) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "textは必須です"})
				return
			}
			log.Printf("通知の挿入に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の保存に失敗しました"})
			return
		}

		data, err := wsevent.NewNotification(n.ID, n.Title, n.Text, n.CreatedAt).Marshal()
		if err != nil {
			log.Printf("配信メッセージの生成に失敗: %v", err)
		} else {
			s.hub.Publish(data)
		}

		sentTo := s.hub.ConnectedCount()
		c.JSON(http.StatusOK, gin.H{"id": n.ID, "sent_to": sentTo})
		log.Printf("通知を送信: id=%d sent_to=%d title=%q", n.ID, sentTo, n.Title)
	}
}

// handleHistory は通知履歴を新しい順で返すハンドラを返す。
// limitは未指定なら50、0以下の指定は100に正規化される。
func (s *Server) handleHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		offset := 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}

		ns, err := s.store.History(c.Request.Context(), limit, offset)
		if err != nil {
			log.Printf("履歴の取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "履歴の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, ns)
	}
}

// markSeenRequest は既読化リクエストのJSON構造。
type markSeenRequest struct {
	// IDs は既読にする通知のID。省略または空の場合は全未読が対象。
	IDs []int64 `json:"ids"`
}

// handleMarkSeen は通知を既読にするハンドラを返す。
// ボディは省略可能。冪等であり、再実行してもmarkedは0になる。
func (s *Server) handleMarkSeen() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ボディは省略可能のためバインドエラーは無視する
		var req markSeenRequest
		_ = c.ShouldBindJSON(&req)

		count, err := s.store.MarkSeen(c.Request.Context(), req.IDs)
		if err != nil {
			log.Printf("既読処理に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "既読処理に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"marked": count})
		log.Printf("既読処理: %d件を既読にしました", count)
	}
}

// handleClear はすべての通知を削除するハンドラを返す。
func (s *Server) handleClear() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Clear(c.Request.Context()); err != nil {
			log.Printf("通知の全削除に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			return
		}

		c.Status(http.StatusNoContent)
		log.Printf("通知の全削除: すべてのレコードを削除しました")
	}
}

// handleWS はWebSocket購読を受け付けるハンドラを返す。
//
// トークン検証と接続数上限のチェックをアップグレード前に行い、
// アップグレード後は履歴スナップショットを最初の送信メッセージとして
// キューに積んでからハブへ登録する。スナップショット取得と登録の間に
// 挿入された通知はこの購読者には配信されない（履歴APIでは参照できる）。
func (s *Server) handleWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
			return
		}

		if s.hub.ConnectedCount() >= maxSubscribers {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "接続数が上限に達しています"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocketアップグレードに失敗: %v", err)
			return
		}

		client := newClient(conn)

		ns, err := s.store.History(c.Request.Context(), historySnapshotLimit, 0)
		if err != nil {
			log.Printf("履歴スナップショットの取得に失敗: id=%s: %v", client.id, err)
		}
		data, err := wsevent.NewHistory(toWireNotifications(ns)).Marshal()
		if err != nil {
			log.Printf("履歴スナップショットの生成に失敗: id=%s: %v", client.id, err)
		} else {
			client.enqueue(data)
		}

		s.hub.Register(client)

		go client.writePump()
		client.readPump(s.hub) // 切断までブロックする
		log.Printf("[WS] 購読者が切断: id=%s remote=%s", client.id, conn.RemoteAddr())
	}
}

// toWireNotifications は永続化レコードをWebSocketワイヤ表現に変換する。
func toWireNotifications(ns []Notification) []wsevent.Notification {
	wire := make([]wsevent.Notification, 0, len(ns))
	for _, n := range ns {
		wire = append(wire, wsevent.Notification{
			ID:        n.ID,
			Title:     n.Title,
			Text:      n.Text,
			CreatedAt: n.CreatedAt,
			SeenAt:    n.SeenAt,
		})
	}
	return wire
}
