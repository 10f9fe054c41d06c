package notihub

import (
	"context"
	"log"
	"sync"
)

// eventKind はHubが処理するイベントの種別を表す。
type eventKind int

const (
	// eventRegister は購読者の登録。
	eventRegister eventKind = iota
	// eventUnregister は購読者の解除。
	eventUnregister
	// eventBroadcast は全購読者へのメッセージ配信。
	eventBroadcast
)

// hubEvent はHubのイベントループへ渡される1つのイベント。
type hubEvent struct {
	kind   eventKind
	client *Client
	msg    []byte
}

// Hub は接続中の購読者レジストリとファンアウト配信を管理する。
// 登録・解除・配信のイベントを単一のFIFOチャネルで受け取り、
// 単一のゴルーチン（Run）が到着順に処理することで、レジストリの
// 変更と配信の直列化を保証する。同じ購読者の登録は必ず解除より先に
// 発行されるため、到着順の処理によって解除が先に消化されて購読者が
// 残り続けることはない。ConnectedCountのための読み取りはRWMutexで保護する。
type Hub struct {
	// mu はclientsマップを保護する。
	mu sync.RWMutex
	// clients は現在接続中の購読者の集合。
	clients map[*Client]struct{}
	// events は登録・解除・配信イベントを到着順に受け取るチャネル。
	events chan hubEvent
}

// NewHub は新しいHubを生成する。Runを呼び出すまでイベントは処理されない。
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		events:  make(chan hubEvent, 256),
	}
}

// Run はイベントループを開始する。ctxがキャンセルされるまでブロックする。
// 通常はゴルーチンとして起動する。
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case ev := <-h.events:
			switch ev.kind {
			case eventRegister:
				h.mu.Lock()
				h.clients[ev.client] = struct{}{}
				h.mu.Unlock()
				log.Printf("[Hub] 購読者を登録: id=%s 接続数=%d", ev.client.id, h.ConnectedCount())

			case eventUnregister:
				h.mu.Lock()
				if _, ok := h.clients[ev.client]; ok {
					delete(h.clients, ev.client)
					close(ev.client.send)
				}
				h.mu.Unlock()

			case eventBroadcast:
				h.mu.RLock()
				for c := range h.clients {
					if !c.enqueue(ev.msg) {
						// 送信キューが満杯の購読者にはこのメッセージを配信しない。
						// 他の購読者への配信と送信側の処理は止めない
						log.Printf("[Hub] 送信キューが満杯のため配信をスキップ: id=%s", c.id)
					}
				}
				h.mu.RUnlock()
			}

		case <-ctx.Done():
			return
		}
	}
}

// Register は購読者をレジストリに追加する。
// 接続数の上限チェックは呼び出し側がConnectedCountで事前に行う。
func (h *Hub) Register(c *Client) {
	h.events <- hubEvent{kind: eventRegister, client: c}
}

// Unregister は購読者をレジストリから取り除き、送信キューを閉じる。
// 既に解除済みの場合は何もしない（冪等）。
func (h *Hub) Unregister(c *Client) {
	h.events <- hubEvent{kind: eventUnregister, client: c}
}

// Publish はメッセージを現在登録中のすべての購読者へ配信する。
// 遅い購読者がいてもブロックしない。
func (h *Hub) Publish(msg []byte) {
	h.events <- hubEvent{kind: eventBroadcast, msg: msg}
}

// ConnectedCount は現在の購読者数を返す。
// 接続受付時の上限チェックと、送信APIのsent_to報告に使用する。
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
