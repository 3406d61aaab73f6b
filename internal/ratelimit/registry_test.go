package ratelimit

import (
	"testing"
	"time"
)

func TestRegistryUsesPerSourceConfig(t *testing.T) {
	t.Parallel()
	fallback := Config{MaxRequests: 5, Window: time.Minute}
	reg := NewRegistry(map[string]Config{
		"mock": {MaxRequests: 1000, Window: time.Minute},
	}, fallback)

	if got := reg.For("mock").Config().MaxRequests; got != 1000 {
		t.Fatalf("expected mock quota 1000, got %d", got)
	}
	if got := reg.For("unknown").Config(); got != fallback {
		t.Fatalf("expected fallback config, got %+v", got)
	}
	if reg.For("mock") != reg.For("mock") {
		t.Fatalf("expected the same limiter for repeated lookups")
	}
}

func TestRegistryResetAll(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil, Config{MaxRequests: 1, Window: time.Minute})

	reg.For("a").RecordRequest("a", 1)
	reg.For("b").RecordRequest("b", 1)
	reg.ResetAll()

	if !reg.For("a").CanMakeRequest("a") || !reg.For("b").CanMakeRequest("b") {
		t.Fatalf("expected every limiter to be reset")
	}
}
