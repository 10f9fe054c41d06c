package notihub

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// newTestStore はテスト用のStoreを一時ファイル上のSQLiteで構築する。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("テスト用DBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db)
}

// insertN はn件のテスト用通知を挿入するヘルパー関数。
func insertN(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.Insert(context.Background(), "タイトル", "本文"); err != nil {
			t.Fatalf("テスト用通知の挿入に失敗: %v", err)
		}
	}
}

// TestStoreInsert はInsertを検証する。
func TestStoreInsert(t *testing.T) {
	t.Parallel()

	t.Run("IDが単調増加で割り当てられること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		n1, err := s.Insert(context.Background(), "Deploy", "done")
		if err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		n2, err := s.Insert(context.Background(), "Build", "ok")
		if err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}

		if n1.ID != 1 {
			t.Errorf("1件目のID = %d, want 1", n1.ID)
		}
		if n2.ID != 2 {
			t.Errorf("2件目のID = %d, want 2", n2.ID)
		}
	})

	t.Run("挿入直後はseen_atが未設定であること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		n, err := s.Insert(context.Background(), "Deploy", "done")
		if err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if n.SeenAt != nil {
			t.Errorf("SeenAt = %v, want nil", *n.SeenAt)
		}
		if n.CreatedAt == "" {
			t.Error("CreatedAtが空")
		}

		// 読み直しても未読のままであること
		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 1 {
			t.Fatalf("履歴の件数 = %d, want 1", len(ns))
		}
		if ns[0].SeenAt != nil {
			t.Errorf("読み直したSeenAt = %v, want nil", *ns[0].SeenAt)
		}
	})

	t.Run("タイトルは空でも挿入できること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		n, err := s.Insert(context.Background(), "", "本文のみ")
		if err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if n.Title != "" {
			t.Errorf("Title = %q, want 空文字列", n.Title)
		}
	})

	t.Run("本文が空の場合ErrEmptyTextが返ること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		if _, err := s.Insert(context.Background(), "タイトル", ""); err != ErrEmptyText {
			t.Errorf("err = %v, want ErrEmptyText", err)
		}
	})

	t.Run("本文が空白のみの場合ErrEmptyTextが返り何も永続化されないこと", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		if _, err := s.Insert(context.Background(), "タイトル", "   \t\n"); err != ErrEmptyText {
			t.Errorf("err = %v, want ErrEmptyText", err)
		}

		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 0 {
			t.Errorf("履歴の件数 = %d, want 0", len(ns))
		}
	})
}

// TestStoreHistory はHistoryを検証する。
func TestStoreHistory(t *testing.T) {
	t.Parallel()

	t.Run("新しい順（ID降順）で返ること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 5)

		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 5 {
			t.Fatalf("履歴の件数 = %d, want 5", len(ns))
		}
		for i := 1; i < len(ns); i++ {
			if ns[i-1].ID <= ns[i].ID {
				t.Errorf("IDが降順でない: ns[%d].ID=%d, ns[%d].ID=%d", i-1, ns[i-1].ID, i, ns[i].ID)
			}
		}
	})

	t.Run("limitで件数が制限されること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 5)

		ns, err := s.History(context.Background(), 2, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 2 {
			t.Fatalf("履歴の件数 = %d, want 2", len(ns))
		}
		if ns[0].ID != 5 || ns[1].ID != 4 {
			t.Errorf("ID = [%d, %d], want [5, 4]", ns[0].ID, ns[1].ID)
		}
	})

	t.Run("offsetで取得開始位置がずれること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 5)

		ns, err := s.History(context.Background(), 2, 2)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 2 {
			t.Fatalf("履歴の件数 = %d, want 2", len(ns))
		}
		if ns[0].ID != 3 || ns[1].ID != 2 {
			t.Errorf("ID = [%d, %d], want [3, 2]", ns[0].ID, ns[1].ID)
		}
	})

	t.Run("0以下のlimitは上限値に正規化されること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 3)

		ns, err := s.History(context.Background(), -5, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 3 {
			t.Errorf("履歴の件数 = %d, want 3", len(ns))
		}
	})

	t.Run("通知が存在しない場合nilではなく空スライスが返ること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if ns == nil {
			t.Fatal("History()がnilを返した")
		}
		if len(ns) != 0 {
			t.Errorf("履歴の件数 = %d, want 0", len(ns))
		}
	})
}

// TestStoreMarkSeen はMarkSeenを検証する。
func TestStoreMarkSeen(t *testing.T) {
	t.Parallel()

	t.Run("ID指定なしの場合すべての未読が既読になること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 3)

		count, err := s.MarkSeen(context.Background(), nil)
		if err != nil {
			t.Fatalf("MarkSeen()でエラーが発生: %v", err)
		}
		if count != 3 {
			t.Errorf("更新件数 = %d, want 3", count)
		}

		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		for _, n := range ns {
			if n.SeenAt == nil {
				t.Errorf("id=%d が未読のまま", n.ID)
			}
		}
	})

	t.Run("ID指定ありの場合対象の未読のみ既読になること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 3)

		count, err := s.MarkSeen(context.Background(), []int64{1, 3})
		if err != nil {
			t.Fatalf("MarkSeen()でエラーが発生: %v", err)
		}
		if count != 2 {
			t.Errorf("更新件数 = %d, want 2", count)
		}

		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		// ID降順で返る: [3, 2, 1]
		if ns[0].SeenAt == nil {
			t.Error("id=3 が未読のまま")
		}
		if ns[1].SeenAt != nil {
			t.Error("id=2 が既読になっている")
		}
		if ns[2].SeenAt == nil {
			t.Error("id=1 が未読のまま")
		}
	})

	t.Run("冪等であること（再実行で0件になること）", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 3)

		first, err := s.MarkSeen(context.Background(), nil)
		if err != nil {
			t.Fatalf("1回目のMarkSeen()でエラーが発生: %v", err)
		}
		if first != 3 {
			t.Errorf("1回目の更新件数 = %d, want 3", first)
		}

		second, err := s.MarkSeen(context.Background(), nil)
		if err != nil {
			t.Fatalf("2回目のMarkSeen()でエラーが発生: %v", err)
		}
		if second != 0 {
			t.Errorf("2回目の更新件数 = %d, want 0", second)
		}
	})

	t.Run("既読済みIDを指定しても更新されないこと", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 2)

		if _, err := s.MarkSeen(context.Background(), []int64{1}); err != nil {
			t.Fatalf("MarkSeen()でエラーが発生: %v", err)
		}

		count, err := s.MarkSeen(context.Background(), []int64{1})
		if err != nil {
			t.Fatalf("MarkSeen()でエラーが発生: %v", err)
		}
		if count != 0 {
			t.Errorf("更新件数 = %d, want 0", count)
		}
	})

	t.Run("存在しないIDを指定しても0件でエラーにならないこと", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		count, err := s.MarkSeen(context.Background(), []int64{999})
		if err != nil {
			t.Fatalf("MarkSeen()でエラーが発生: %v", err)
		}
		if count != 0 {
			t.Errorf("更新件数 = %d, want 0", count)
		}
	})
}

// TestStoreClear はClearを検証する。
func TestStoreClear(t *testing.T) {
	t.Parallel()

	t.Run("すべての通知が削除されること", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		insertN(t, s, 3)

		if err := s.Clear(context.Background()); err != nil {
			t.Fatalf("Clear()でエラーが発生: %v", err)
		}

		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 0 {
			t.Errorf("履歴の件数 = %d, want 0", len(ns))
		}
	})

	t.Run("空の状態でClearしてもエラーにならないこと", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)

		if err := s.Clear(context.Background()); err != nil {
			t.Errorf("Clear()でエラーが発生: %v", err)
		}
	})
}

// TestOpenDBMigration はスキーマのマイグレーションを検証する。
func TestOpenDBMigration(t *testing.T) {
	t.Parallel()

	t.Run("seen_at導入前のデータベースを開けること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "old.db")

		// seen_atカラムもバージョン管理テーブルも持たない
		// 旧スキーマのデータベースを作成する
		oldDB, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("旧DBの作成に失敗: %v", err)
		}
		if _, err := oldDB.Exec(`
			CREATE TABLE notifications (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				title      TEXT NOT NULL DEFAULT '',
				text       TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT (datetime('now'))
			)
		`); err != nil {
			t.Fatalf("旧スキーマの作成に失敗: %v", err)
		}
		if _, err := oldDB.Exec(
			`INSERT INTO notifications (title, text) VALUES ('旧データ', '移行前の通知')`,
		); err != nil {
			t.Fatalf("旧データの挿入に失敗: %v", err)
		}
		if err := oldDB.Close(); err != nil {
			t.Fatalf("旧DBのクローズに失敗: %v", err)
		}

		// マイグレーション適用後、既存データは未読として読めること
		db, err := OpenDB(path)
		if err != nil {
			t.Fatalf("OpenDB()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		s := NewStore(db)
		ns, err := s.History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 1 {
			t.Fatalf("履歴の件数 = %d, want 1", len(ns))
		}
		if ns[0].Title != "旧データ" {
			t.Errorf("Title = %q, want 旧データ", ns[0].Title)
		}
		if ns[0].SeenAt != nil {
			t.Errorf("SeenAt = %v, want nil", *ns[0].SeenAt)
		}

		// 移行後のデータベースで既読処理も動作すること
		count, err := s.MarkSeen(context.Background(), nil)
		if err != nil {
			t.Fatalf("MarkSeen()でエラーが発生: %v", err)
		}
		if count != 1 {
			t.Errorf("更新件数 = %d, want 1", count)
		}
	})

	t.Run("同じデータベースを再度開いてもエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "reopen.db")

		db1, err := OpenDB(path)
		if err != nil {
			t.Fatalf("1回目のOpenDB()でエラーが発生: %v", err)
		}
		if _, err := NewStore(db1).Insert(context.Background(), "A", "B"); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if err := db1.Close(); err != nil {
			t.Fatalf("クローズに失敗: %v", err)
		}

		db2, err := OpenDB(path)
		if err != nil {
			t.Fatalf("2回目のOpenDB()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { _ = db2.Close() })

		ns, err := NewStore(db2).History(context.Background(), defaultHistoryLimit, 0)
		if err != nil {
			t.Fatalf("History()でエラーが発生: %v", err)
		}
		if len(ns) != 1 {
			t.Errorf("履歴の件数 = %d, want 1", len(ns))
		}
	})

	t.Run("seen_atが既に存在する未管理データベースも開けること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "unmanaged.db")

		// バージョン管理テーブルなしでseen_at込みのスキーマを作成する
		oldDB, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("旧DBの作成に失敗: %v", err)
		}
		if _, err := oldDB.Exec(`
			CREATE TABLE notifications (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				title      TEXT NOT NULL DEFAULT '',
				text       TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT (datetime('now')),
				seen_at    DATETIME
			)
		`); err != nil {
			t.Fatalf("旧スキーマの作成に失敗: %v", err)
		}
		if err := oldDB.Close(); err != nil {
			t.Fatalf("旧DBのクローズに失敗: %v", err)
		}

		db, err := OpenDB(path)
		if err != nil {
			t.Fatalf("OpenDB()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		if _, err := NewStore(db).Insert(context.Background(), "A", "B"); err != nil {
			t.Errorf("Insert()でエラーが発生: %v", err)
		}
	})
}
