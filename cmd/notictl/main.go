// notictlは通知リレーサービスのHTTP APIを操作するCLIクライアント。
//
// 使用例:
//
//	notictl -addr http://localhost:8086 -token secret send -title "Deploy" -text "done"
//	notictl -addr http://localhost:8086 -token secret history -limit 20
//	notictl -addr http://localhost:8086 -token secret mark-seen -ids 1,2,3
//	notictl -addr http://localhost:8086 -token secret clear
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/nao1215/notihub/pkg/httpclient"
)

func main() {
	addr := flag.String("addr", "http://localhost:8086", "通知リレーサービスのベースURL")
	token := flag.String("token", "", "共有認証トークン")
	flag.Parse()

	if *token == "" {
		log.Fatal("-tokenは必須です")
	}
	if flag.NArg() < 1 {
		log.Fatal("サブコマンドが必要です: send | history | mark-seen | clear")
	}

	client := httpclient.New(*addr, *token)
	ctx := context.Background()

	var err error
	switch flag.Arg(0) {
	case "send":
		err = runSend(ctx, client, flag.Args()[1:])
	case "history":
		err = runHistory(ctx, client, flag.Args()[1:])
	case "mark-seen":
		err = runMarkSeen(ctx, client, flag.Args()[1:])
	case "clear":
		err = client.Delete(ctx, "/notifications")
	default:
		log.Fatalf("未知のサブコマンド: %s", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("%s に失敗: %v", flag.Arg(0), err)
	}
}

// runSend は通知を送信し、割り当てられたIDと配信先数を表示する。
func runSend(ctx context.Context, client *httpclient.Client, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	title := fs.String("title", "", "通知のタイトル（省略可）")
	text := fs.String("text", "", "通知の本文（必須）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body := map[string]string{"title": *title, "text": *text}
	var result map[string]any
	if err := client.PostJSON(ctx, "/send", body, &result); err != nil {
		return err
	}

	fmt.Printf("id=%v sent_to=%v\n", result["id"], result["sent_to"])
	return nil
}

// runHistory は通知履歴を新しい順で表示する。
func runHistory(ctx context.Context, client *httpclient.Client, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 50, "取得件数")
	offset := fs.Int("offset", 0, "取得開始位置")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var result []map[string]any
	path := fmt.Sprintf("/history?limit=%d&offset=%d", *limit, *offset)
	if err := client.GetJSON(ctx, path, &result); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runMarkSeen は指定されたID（省略時は全未読）の通知を既読にする。
func runMarkSeen(ctx context.Context, client *httpclient.Client, args []string) error {
	fs := flag.NewFlagSet("mark-seen", flag.ExitOnError)
	idsArg := fs.String("ids", "", "既読にする通知ID（カンマ区切り、省略時は全未読）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var ids []int64
	if *idsArg != "" {
		for _, raw := range strings.Split(*idsArg, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("IDのパースに失敗: %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
	}

	var result map[string]any
	if err := client.PostJSON(ctx, "/mark-seen", map[string]any{"ids": ids}, &result); err != nil {
		return err
	}

	fmt.Printf("marked=%v\n", result["marked"])
	return nil
}
