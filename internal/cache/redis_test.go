package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestStateKey(t *testing.T) {
	rc := NewRedisCacheFrom(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	defer rc.Close()

	if got := rc.StateKey("N2F-A:standings"); got != "volleysync:state:N2F-A:standings" {
		t.Errorf("StateKey() = %q", got)
	}
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url"); err == nil {
		t.Error("NewRedisCache() accepted an invalid URL")
	}
}
