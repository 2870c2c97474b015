// Package reminder はリマインダーサービスの内部実装を提供する。
//
// 指定日時以降に送るメール通知をチケットとして永続化し、定期スイープで
// 配信する。チケットはバスイベント（CREATE_TICKET）またはHTTP API
// （POST /api/v1/tickets）から作成される。
//
// 状態遷移は PENDING → SUCCESS または PENDING → FAILED の一方向のみで、
// すべての遷移は「現在もPENDINGであること」を条件とする条件付き更新で
// 適用される。複数のスケジューラが同じチケットを取り合っても、配信前の
// リース取得に勝った1つだけが送信する。
package reminder
