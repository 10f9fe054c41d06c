package notihub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyText は通知本文が空（空白のみを含む）の場合に返される。
var ErrEmptyText = errors.New("通知本文が空です")

const (
	// defaultHistoryLimit はlimit未指定時の履歴取得件数。
	defaultHistoryLimit = 50
	// maxHistoryLimit は不正なlimit指定時に適用する取得件数の上限。
	maxHistoryLimit = 100
)

// Notification は永続化された通知レコードを表す。
type Notification struct {
	// ID は通知の一意識別子。挿入順に単調増加し、時系列順と一致する。
	ID int64 `json:"id"`
	// Title は通知のタイトル。空文字列の場合もある。
	Title string `json:"title"`
	// Text は通知の本文。
	Text string `json:"text"`
	// CreatedAt は通知の作成日時（UTC、RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// SeenAt は既読日時。未読の場合はnil。一度設定されたら戻らない。
	SeenAt *string `json:"seen_at"`
}

// Store は通知の追記専用ログをSQLite上で管理する。
// 並行アクセスの安全性はdatabase/sqlとSQLiteのロックに委ねる。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert は通知を永続化し、IDと作成日時を割り当てて返す。
// textが空白のみの場合はErrEmptyTextを返し、何も永続化しない。
func (s *Store) Insert(ctx context.Context, title, text string) (Notification, error) {
	if strings.TrimSpace(text) == "" {
		return Notification{}, ErrEmptyText
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (title, text, created_at) VALUES (?, ?, ?)`,
		title, text, createdAt,
	)
	if err != nil {
		return Notification{}, fmt.Errorf("通知の挿入に失敗: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Notification{}, fmt.Errorf("挿入した通知のID取得に失敗: %w", err)
	}

	return Notification{
		ID:        id,
		Title:     title,
		Text:      text,
		CreatedAt: createdAt,
		SeenAt:    nil,
	}, nil
}

// History は通知をID降順（新しい順）でlimit件、offset件目以降から返す。
// limitが0以下の場合は上限値に、未指定（0）の扱いは呼び出し側で
// defaultHistoryLimitを渡すことで表現する。結果が0件でもnilではなく
// 空のスライスを返す。
func (s *Store) History(ctx context.Context, limit, offset int) ([]Notification, error) {
	if limit < 1 {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, text, created_at, seen_at FROM notifications
		 ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ns := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Text, &n.CreatedAt, &n.SeenAt); err != nil {
			return nil, fmt.Errorf("履歴行の読み取りに失敗: %w", err)
		}
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴の走査に失敗: %w", err)
	}
	return ns, nil
}

// MarkSeen は指定されたIDの未読通知を既読にし、更新した行数を返す。
// idsが空の場合はすべての未読通知を対象にする。既読の通知は変更しないため
// 同じ引数で再実行しても0行の更新となる（冪等）。
func (s *Store) MarkSeen(ctx context.Context, ids []int64) (int64, error) {
	seenAt := time.Now().UTC().Format(time.RFC3339)

	var (
		res sql.Result
		err error
	)
	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, 0, len(ids)+1)
		args = append(args, seenAt)
		for _, id := range ids {
			args = append(args, id)
		}
		res, err = s.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE notifications SET seen_at = ?
			             WHERE seen_at IS NULL AND id IN (%s)`, placeholders),
			args...,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE notifications SET seen_at = ? WHERE seen_at IS NULL`,
			seenAt,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("既読処理に失敗: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新行数の取得に失敗: %w", err)
	}
	return count, nil
}

// Clear はすべての通知を削除する。取り消しはできない。
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("通知の全削除に失敗: %w", err)
	}
	return nil
}
