// 通知リレーサービスのエントリポイント。
// 信頼された送信者からの通知をSQLiteに記録し、
// WebSocketで接続中の購読者へリアルタイム配信する。
package main

import (
	"log"

	"github.com/nao1215/notihub/internal/notihub"
)

func main() {
	cfg, err := notihub.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := notihub.NewServer(cfg)
	if err != nil {
		log.Fatalf("通知リレーサーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知リレーサービスを起動します: :%s (db=%s)", cfg.Port, cfg.DBPath)
	if err := server.Run(); err != nil {
		log.Fatalf("通知リレーサービスの起動に失敗: %v", err)
	}
}
