package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errOperationInProgress = errors.New("该帖子正在处理中，请稍后再试")

// 只有持有者才能释放锁，避免锁过期后误删别人的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func postLockKey(clientID, postID string) string {
	return fmt.Sprintf("schedule_lock_%s_%s", clientID, postID)
}

// postLocker 在排期流程期间持有帖子的锁，防止重复提交。
// 锁已被占用时返回 errOperationInProgress。
type postLocker interface {
	Lock(ctx context.Context, clientID, postID string) (unlock func(), err error)
}

type redisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

func (l *redisLocker) Lock(ctx context.Context, clientID, postID string) (func(), error) {
	key := postLockKey(clientID, postID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errOperationInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			slog.Error("释放帖子锁失败", "key", key, "error", err)
		}
	}, nil
}
