// Package bus はRabbitMQ上のイベントバスとの接続を提供する。
//
// Consumerはキューからエンベロープを1件ずつ受け取り、event.Handlerへ
// 振り分ける。処理結果に応じてAck、再配送、デッドレターを選ぶ。
//
//   - 成功: Ack
//   - 未知のタグ: ログ出力してAck
//   - 形式不正（event.ErrMalformed）: Nack(requeue=false)でデッドレターへ
//   - その他のエラー: x-redelivery-countを1増やしたコピーを再投入してAck。
//     上限を超えた場合はデッドレターへ
//
// Publisherは同じエンベロープ形式でイベントを発行する。
package bus
