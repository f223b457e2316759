package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLoaderFetchesOnce(t *testing.T) {
	var fetches int32
	l := NewLoaderFunc(func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&fetches, 1)
		return []byte("script"), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := l.Load(context.Background())
			if err != nil || string(b) != "script" {
				t.Errorf("Load = %q, %v", b, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Fatalf("fetched %d times, want 1", n)
	}
	if !l.Loaded() {
		t.Fatalf("Loaded() = false after successful load")
	}
}

func TestLoaderFailureNotCached(t *testing.T) {
	var fetches int32
	l := NewLoaderFunc(func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&fetches, 1) == 1 {
			return nil, errors.New("cdn down")
		}
		return []byte("script"), nil
	})

	if _, err := l.Load(context.Background()); err == nil {
		t.Fatalf("first load should fail")
	}
	if l.Loaded() {
		t.Fatalf("failure must not be cached as loaded")
	}

	b, err := l.Load(context.Background())
	if err != nil || string(b) != "script" {
		t.Fatalf("retry = %q, %v", b, err)
	}
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Fatalf("fetched %d times, want 2", n)
	}
}
