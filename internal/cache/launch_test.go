package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"openshare/pkg/domain"
)

func TestRedisLaunchCacheRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	c := NewRedisLaunchCache(redis.Addr(), "", time.Minute)

	if _, ok, err := c.Get(1); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v, want miss", ok, err)
	}

	snap := domain.LaunchSnapshot{
		Resource: domain.Resource{ID: 1, Title: "T", Status: domain.StatusApproved},
		Version:  domain.ResourceVersion{ID: 3, ResourceID: 1, VersionNumber: 2, Content: "C"},
	}
	if err := c.Set(snap); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(1)
	if err != nil || !ok {
		t.Fatalf("get after set: ok=%v err=%v", ok, err)
	}
	if got.Resource.Title != "T" || got.Version.VersionNumber != 2 || got.Version.Content != "C" {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
}

func TestRedisLaunchCacheInvalidate(t *testing.T) {
	redis := miniredis.RunT(t)
	c := NewRedisLaunchCache(redis.Addr(), "", time.Minute)

	snap := domain.LaunchSnapshot{
		Resource: domain.Resource{ID: 7, Status: domain.StatusApproved},
		Version:  domain.ResourceVersion{ResourceID: 7, VersionNumber: 1},
	}
	if err := c.Set(snap); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Invalidate(7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(7); ok {
		t.Fatalf("expected miss after invalidate")
	}
	// Invalidating an absent key is fine.
	if err := c.Invalidate(7); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
}

func TestRedisLaunchCacheTTLExpiry(t *testing.T) {
	redis := miniredis.RunT(t)
	c := NewRedisLaunchCache(redis.Addr(), "", time.Minute)

	snap := domain.LaunchSnapshot{
		Resource: domain.Resource{ID: 2, Status: domain.StatusApproved},
		Version:  domain.ResourceVersion{ResourceID: 2, VersionNumber: 1},
	}
	if err := c.Set(snap); err != nil {
		t.Fatalf("set: %v", err)
	}
	redis.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(2); ok {
		t.Fatalf("expected miss after TTL expiry")
	}
}
