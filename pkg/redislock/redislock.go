// Package redislock はRedisのSET NX PXによる単純な排他ロックを提供する。
//
// ロックはTTLで自動的に失効する。解放時はトークンを照合し、
// 他の保持者が取り直したロックを消さない。
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript は保持者のトークンと一致する場合のみキーを削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock はキー1つに対応する分散ロック。
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New は新しいLockを生成する。ttlはロックを保持する処理の最大時間より長くする。
func New(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// TryLock はロックの取得を1回だけ試みる。
// 取得できた場合、処理の終了時にreleaseを呼び出す。
func (l *Lock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("ロックの取得に失敗: %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("ロックの解放に失敗: %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}
