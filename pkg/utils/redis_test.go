package utils

import (
	"context"
	"testing"
)

func TestDialSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if dialSlotAcquireScript == nil || dialSlotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestOpenRedisRequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
