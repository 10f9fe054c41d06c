package notihub

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// maxSubscribers は同時に接続できる購読者数の上限。
	maxSubscribers = 15
	// sendBufferSize は購読者ごとの送信キューの容量。
	sendBufferSize = 64
	// historySnapshotLimit は接続直後に送信する履歴スナップショットの件数。
	historySnapshotLimit = 100

	// writeWait は1フレームの書き込みに許容する時間。
	writeWait = 10 * time.Second
	// pongWait はpong受信からの読み取りデッドライン。
	// pingPeriodの2回分を少し超える長さで、ping2回分の欠落まで許容する。
	pongWait = 70 * time.Second
	// pingPeriod はキープアライブpingの送信間隔。
	pingPeriod = 30 * time.Second
	// maxMessageSize は購読者から受信するメッセージの最大サイズ。
	// 購読者からのメッセージに意味はないため小さく抑える。
	maxMessageSize = 512
)

// upgrader はHTTP接続をWebSocketへアップグレードする設定。
// リバースプロキシ越しやWebView等の多様なクライアントを受け付けるため
// Originは検証しない。認証はトークンで行う。
var upgrader = websocket.Upgrader{
	CheckOrigin:      func(_ *http.Request) bool { return true },
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
}

// Client は接続中の購読者を表す。
// 再接続時は新しいClientが生成され、過去の配信状態は引き継がれない。
type Client struct {
	// id はログ出力用の接続識別子。
	id string
	// conn は購読者とのWebSocket接続。
	conn *websocket.Conn
	// send は購読者への送信キュー。Hubが解除時に閉じる。
	send chan []byte
	// pingEvery はキープアライブpingの送信間隔。テストで短縮できるよう
	// フィールドに持つ。
	pingEvery time.Duration
}

// newClient は新しい購読者を生成する。
func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		pingEvery: pingPeriod,
	}
}

// enqueue はメッセージを送信キューに積む。キューが満杯の場合は
// 積まずにfalseを返す。ブロックしない。
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump は購読者からの受信ストリームを読み続ける。
// 受信内容は切断検知とpongによるデッドライン更新のためだけに使い、
// メッセージ自体は無視する。切断またはデッドライン超過で戻り、
// Hubからの解除と接続のクローズを行う。
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信キューからメッセージを取り出してWebSocketへ書き込み、
// 一定間隔でキープアライブpingを送信する。gorilla/websocketの接続は
// 同時に1つの書き込みしか許容しないため、この接続への書き込みはすべて
// このゴルーチンだけが行う。キューが閉じられるか書き込みに失敗したら
// 接続を閉じて戻る。接続が閉じるとreadPumpも解除処理へ進む。
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[WS] 書き込みに失敗: id=%s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
