package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("provider")

// scriptMaxBytes caps a fetched provider script. Anything bigger is a
// broken deploy, not a script.
const scriptMaxBytes = 8 * 1024 * 1024

// Loader fetches the provider's bootstrap script once per process and
// caches the result. Concurrent first callers share a single fetch; later
// callers get the cached bytes without touching the network.
type Loader struct {
	fetch func(ctx context.Context) ([]byte, error)

	mu      sync.Mutex
	done    chan struct{}
	script  []byte
	loadErr error
}

// NewLoader creates a loader that fetches the script from scriptURL.
func NewLoader(scriptURL string) *Loader {
	client := &http.Client{Timeout: 15 * time.Second}
	return &Loader{
		fetch: func(ctx context.Context) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode/100 != 2 {
				return nil, fmt.Errorf("fetch provider script: status %s", resp.Status)
			}
			b, err := io.ReadAll(io.LimitReader(resp.Body, scriptMaxBytes+1))
			if err != nil {
				return nil, fmt.Errorf("read provider script: %w", err)
			}
			if len(b) > scriptMaxBytes {
				return nil, fmt.Errorf("provider script exceeds %d bytes", scriptMaxBytes)
			}
			return b, nil
		},
	}
}

// NewLoaderFunc creates a loader around a custom fetch. Tests and embedded
// deployments use this.
func NewLoaderFunc(fetch func(ctx context.Context) ([]byte, error)) *Loader {
	return &Loader{fetch: fetch}
}

// Load returns the provider script, fetching it on first call. A failed
// fetch is not cached; the next caller retries.
func (l *Loader) Load(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	if l.script != nil {
		script := l.script
		l.mu.Unlock()
		return script, nil
	}
	if l.done != nil {
		// A fetch is in flight; wait for it.
		done := l.done
		l.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		l.mu.Lock()
		script, err := l.script, l.loadErr
		l.mu.Unlock()
		if script != nil {
			return script, nil
		}
		return nil, err
	}

	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	script, err := l.fetch(ctx)

	l.mu.Lock()
	if err != nil {
		log.Warnw("provider script load failed", "err", err)
		l.loadErr = err
	} else {
		log.Infof("provider script loaded (%d bytes)", len(script))
		l.script = script
		l.loadErr = nil
	}
	l.done = nil
	l.mu.Unlock()
	close(done)

	if err != nil {
		return nil, err
	}
	return script, nil
}

// Loaded reports whether the script is already cached.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.script != nil
}
