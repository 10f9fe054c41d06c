// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 共有ベアラートークンの検証、パニックリカバリ、CORS設定など、
// 通知リレーの全エンドポイントで共通して使用するミドルウェアを含む。
package middleware
