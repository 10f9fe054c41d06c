package notihub

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config は通知リレーサービスのプロセス設定。
// 環境変数（NOTIHUB_プレフィックス）から読み込む。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `envconfig:"PORT" default:"8086"`
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string `envconfig:"DB" default:"notifications.db"`
	// Token は共有認証トークンの直接指定。TokenFileと排他。
	Token string `envconfig:"TOKEN"`
	// TokenFile は共有認証トークンを格納したファイルのパス。Tokenと排他。
	TokenFile string `envconfig:"TOKEN_FILE"`
}

// LoadConfig は環境変数からConfigを構築する。
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("notihub", &cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	return cfg, nil
}

// ResolveToken はトークンの指定元を解決して共有トークンを返す。
// 直接指定とファイル指定のどちらか一方だけが設定されている必要があり、
// 両方・どちらも未設定・解決結果が空のいずれの場合もエラーを返す。
func (c Config) ResolveToken() (string, error) {
	switch {
	case c.Token != "" && c.TokenFile != "":
		return "", errors.New("NOTIHUB_TOKENとNOTIHUB_TOKEN_FILEは同時に指定できません")
	case c.TokenFile != "":
		raw, err := os.ReadFile(c.TokenFile)
		if err != nil {
			return "", fmt.Errorf("トークンファイルの読み込みに失敗: %w", err)
		}
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return "", errors.New("トークンファイルが空です")
		}
		return token, nil
	case c.Token != "":
		return c.Token, nil
	default:
		return "", errors.New("NOTIHUB_TOKENまたはNOTIHUB_TOKEN_FILEのいずれかが必要です")
	}
}
