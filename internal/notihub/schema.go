package notihub

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nao1215/notihub/pkg/migration"
)

// migrationFS はembedされたマイグレーションファイル群。
// seen_atカラムは後から追加されたため、古いスキーマで作成された
// データベースに対しても追加のみのマイグレーションで追従できる。
//
//go:embed migrations/*.up.sql
var migrationFS embed.FS

// OpenDB はSQLiteデータベースを開き、マイグレーションを適用する。
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	return db, nil
}
