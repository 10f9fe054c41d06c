// Package httpclient は通知リレーのHTTP APIを呼び出すクライアントを提供する。
//
// 共有ベアラートークンを全リクエストに付与し、JSON形式での
// リクエスト/レスポンスを統一的に扱う。notictlコマンドや
// 外部の送信側スクリプトから使用する。
package httpclient
