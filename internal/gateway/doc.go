// Package gateway は認証ゲートウェイの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、クライアント単位のレート制限と
// アクセストークンの確認を通過したリクエストだけをリマインダーサービスへ転送する。
// トークンの確認は認証エンドポイント（GET /api/v1/isAuthenticated）への
// HTTP呼び出しで行うため、認証サービスを別プロセスに分けても構成は変わらない。
package gateway
