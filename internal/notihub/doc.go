// Package notihub は通知リレーサービスの内部実装を提供する。
//
// 信頼された単一の送信者からの短いテキスト通知をSQLiteに永続化し、
// WebSocketで接続中の購読者へファンアウト配信する。通知の履歴取得、
// 既読管理、全削除のHTTP APIも提供する。
package notihub
