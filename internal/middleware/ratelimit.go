package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/maltresponse/internal/model"
)

// Limiter はキーごとのレート制限判定のインターフェース。
// 許可されなかった場合はretryAfterに再試行までの推定時間を返す。
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// keyLimiter はキーごとのトークンバケットと最終アクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter はプロセス内のトークンバケットによるLimiter。
// 単一インスタンス構成で使用する。
type MemoryLimiter struct {
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh chan struct{}
}

// NewMemoryLimiter は1分あたりperMinute回を許可するMemoryLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryLimiter(perMinute int, cleanupInterval time.Duration) *MemoryLimiter {
	ml := &MemoryLimiter{
		rate:            rate.Limit(float64(perMinute) / 60.0),
		burst:           perMinute,
		cleanupInterval: cleanupInterval,
		limiters:        make(map[string]*keyLimiter),
		stopCh:          make(chan struct{}),
	}

	go ml.cleanupLoop()

	return ml
}

// Allow はキーのバケットから1トークン消費できるかを返す。
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	ml.mu.Lock()
	kl, ok := ml.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(ml.rate, ml.burst)}
		ml.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	ml.mu.Unlock()

	if kl.limiter.Allow() {
		return true, 0, nil
	}
	retryAfter := time.Duration(math.Ceil(1.0/float64(ml.rate))) * time.Second
	return false, retryAfter, nil
}

// Len は現在管理しているキー数を返す。テスト用。
func (ml *MemoryLimiter) Len() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return len(ml.limiters)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (ml *MemoryLimiter) Stop() {
	close(ml.stopCh)
}

func (ml *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(ml.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ml.cleanup(time.Now())
		case <-ml.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからcleanupIntervalの2倍を超えたエントリを削除する。
func (ml *MemoryLimiter) cleanup(now time.Time) {
	ttl := ml.cleanupInterval * 2

	ml.mu.Lock()
	defer ml.mu.Unlock()
	for key, kl := range ml.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(ml.limiters, key)
		}
	}
}

// RedisLimiter はRedisの固定ウィンドウカウンターによるLimiter。
// 複数インスタンスで制限を共有する場合に使用する。
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisLimiter はウィンドウあたりlimit回を許可するRedisLimiterを生成する。
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "maltresponse:ratelimit:login:",
	}
}

// Allow はカウンターを加算し、ウィンドウ内の回数が上限以内かを返す。
// INCR・EXPIRE NX・TTLは1つのMULTIで送るため、TTLの無いキーは次の呼び出しで必ず期限が付く。
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := rl.prefix + key

	var (
		count *redis.IntCmd
		ttl   *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, rl.window)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to update rate counter: %w", err)
	}

	if count.Val() <= rl.limit {
		return true, 0, nil
	}

	retryAfter := ttl.Val()
	if retryAfter <= 0 {
		retryAfter = rl.window
	}
	return false, retryAfter, nil
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)

// NewLoginThrottleMiddleware はクライアントIPごとにログインアクションを制限するミドルウェアを返す。
// Limiterがエラーを返した場合はリクエストを通す。
func NewLoginThrottleMiddleware(limiter Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := clientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", key),
					slog.String("limit_type", "login"),
				)
				writeRateLimitResponse(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はRemoteAddrからIPアドレス部分を取り出す。
// TRUST_PROXY_HEADERSが有効な場合はルーター先頭のRealIPがRemoteAddrを書き換え済み。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	rejectRequest(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
