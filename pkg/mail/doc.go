// Package mail はメール送信の抽象と実装を提供する。
//
// 呼び出し側は Transport の成功/失敗だけに依存する。SMTPTransport は
// コンテキストの期限をそのまま接続のデッドラインとして使うため、
// タイムアウトは送信失敗（ErrDelivery）として扱われる。
package mail
