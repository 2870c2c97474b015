// Package middleware はサービス共通のGinミドルウェアを提供する。
//
// パニックからの回復、JWT認証、外部認証サービスへの問い合わせによる
// 認証チェック、クライアント単位のレート制限を含む。
package middleware
