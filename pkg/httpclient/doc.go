// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ゲートウェイから認証エンドポイントへの問い合わせや、
// CLIからリマインダーサービスへのチケット登録で使用する。
package httpclient
