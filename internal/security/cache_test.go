package security

import (
	"testing"
	"time"

	"github.com/acolita/fastcp/internal/testing/fakes/fakeclock"
)

func TestSecureCache_Basic(t *testing.T) {
	clock := fakeclock.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewSecureCache([]byte("secret"), 5*time.Minute, WithClock(clock))

	if !cache.IsValid() {
		t.Error("cache should be valid immediately")
	}

	if string(cache.Get()) != "secret" {
		t.Errorf("Get() = %q, want %q", cache.Get(), "secret")
	}

	clock.Advance(6 * time.Minute)

	if cache.IsValid() {
		t.Error("cache should be expired after 6 minutes")
	}
	if cache.Get() != nil {
		t.Error("Get() should return nil after expiration")
	}
}

func TestSecureCache_Clear(t *testing.T) {
	cache := NewSecureCache([]byte("secret"), 5*time.Minute)

	cache.Clear()

	if cache.IsValid() {
		t.Error("cache should not be valid after Clear()")
	}
	if cache.Get() != nil {
		t.Error("Get() should return nil after Clear()")
	}
}

func TestSecureCache_DataIsolation(t *testing.T) {
	original := []byte("secret")
	cache := NewSecureCache(original, 5*time.Minute)

	original[0] = 'X'

	got := cache.Get()
	if string(got) != "secret" {
		t.Errorf("cache was modified by changing original data")
	}

	got[0] = 'Y'

	got2 := cache.Get()
	if string(got2) != "secret" {
		t.Errorf("cache was modified by changing returned data")
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte("secret")
	WipeBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not wiped: got %v", i, v)
		}
	}
}
