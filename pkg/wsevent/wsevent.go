// Package wsevent はWebSocket購読者へ配信するメッセージのワイヤ形式を定義する。
//
// すべてのメッセージは "type" フィールドで種別を判別するエンベロープ形式。
// 接続直後に一度だけ送信される履歴スナップショットと、
// ライブ配信される個々の通知の2種類がある。
package wsevent

import (
	"encoding/json"
	"fmt"
)

// Type はWebSocketメッセージの種別を表す。
type Type string

const (
	// TypeHistory は接続直後に一度だけ送信される履歴スナップショットを表す。
	TypeHistory Type = "history"
	// TypeNotification はライブ配信される個々の通知を表す。
	TypeNotification Type = "notification"
)

// Notification は履歴スナップショットに含まれる通知のワイヤ表現。
type Notification struct {
	// ID は通知の一意識別子。挿入順に単調増加する。
	ID int64 `json:"id"`
	// Title は通知のタイトル。空文字列の場合もある。
	Title string `json:"title"`
	// Text は通知の本文。
	Text string `json:"text"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// SeenAt は既読日時。未読の場合はnull。
	SeenAt *string `json:"seen_at"`
}

// Envelope はWebSocketで送信されるメッセージのエンベロープ。
// Typeに応じて使用されるフィールドが異なる。historyではNotificationsのみ、
// notificationではID/Title/Text/CreatedAtを使用する。
// ライブ配信される通知は常に未読であるため、notificationにseen_atは含まれない。
type Envelope struct {
	Type          Type           `json:"type"`
	Notifications []Notification `json:"notifications,omitempty"`
	ID            int64          `json:"id,omitempty"`
	Title         string         `json:"title,omitempty"`
	Text          string         `json:"text,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
}

// historyWire は履歴スナップショットのワイヤ構造。
// notificationsは空配列でも必ず出力する。
type historyWire struct {
	Type          Type           `json:"type"`
	Notifications []Notification `json:"notifications"`
}

// notificationWire はライブ配信通知のワイヤ構造。
type notificationWire struct {
	Type      Type   `json:"type"`
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// NewHistory は履歴スナップショットのエンベロープを生成する。
func NewHistory(ns []Notification) Envelope {
	return Envelope{
		Type:          TypeHistory,
		Notifications: ns,
	}
}

// NewNotification はライブ配信用のエンベロープを生成する。
func NewNotification(id int64, title, text, createdAt string) Envelope {
	return Envelope{
		Type:      TypeNotification,
		ID:        id,
		Title:     title,
		Text:      text,
		CreatedAt: createdAt,
	}
}

// Marshal はエンベロープを種別に応じたワイヤ形式にシリアライズする。
func (e Envelope) Marshal() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch e.Type {
	case TypeHistory:
		ns := e.Notifications
		if ns == nil {
			ns = []Notification{}
		}
		data, err = json.Marshal(historyWire{Type: e.Type, Notifications: ns})
	case TypeNotification:
		data, err = json.Marshal(notificationWire{
			Type:      e.Type,
			ID:        e.ID,
			Title:     e.Title,
			Text:      e.Text,
			CreatedAt: e.CreatedAt,
		})
	default:
		return nil, fmt.Errorf("未知のWebSocketメッセージ種別: %q", e.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("WebSocketメッセージのシリアライズに失敗: %w", err)
	}
	return data, nil
}

// Decode はJSONバイト列からエンベロープを復元する。
// 購読クライアント側でのメッセージ種別判定に使用する。
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("WebSocketメッセージのデシリアライズに失敗: %w", err)
	}
	return e, nil
}
