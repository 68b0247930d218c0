package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTestRedisAddr = "localhost:6379"
	testRedisDB          = 15
)

// NewTestRedis connects to TEST_REDIS_ADDR on a scratch database and
// flushes it, skipping the test when Redis does not answer.
func NewTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = defaultTestRedisAddr
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: testRedisDB, DialTimeout: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("skipping Redis integration tests: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Fatalf("flush redis: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return rdb
}
