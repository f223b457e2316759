// Package app wires the coordinator together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/api"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/channel"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/config"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/gate"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/provider"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/session"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/util"
)

var log = logging.Logger("app")

type Options struct {
	DataDir string
	CfgPath string
	Cfg     config.Config
}

// Run starts the coordinator and blocks until ctx is cancelled or the HTTP
// server fails.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg
	if err := cfg.ApplyLogLevels(); err != nil {
		return fmt.Errorf("apply log levels: %w", err)
	}

	// ── Appointment directory
	var dir directory.Directory
	switch cfg.Directory.Mode {
	case "http":
		dir = directory.NewClient(cfg.Directory.URL)
		log.Infof("directory: %s", cfg.Directory.URL)
	default:
		store, err := directory.OpenStore(util.ResolvePath(opt.DataDir, cfg.Directory.DataDir))
		if err != nil {
			return fmt.Errorf("open directory store: %w", err)
		}
		defer store.Close()
		dir = store
		log.Infof("directory: local store at %s", store.Path())
	}

	// ── Session pipeline
	loader := provider.NewLoader(cfg.Provider.ScriptURL)
	bridges := api.NewBridgeRegistry()
	g := gate.New(time.Duration(cfg.Gate.GraceMinutes) * time.Minute)
	transport := channel.NewWebsocketTransport(cfg.Broker.URL)
	sessions := session.NewManager(dir, g, loader, bridges.Factory, transport)
	defer sessions.Close()

	// ── HTTP surface
	mux := http.NewServeMux()
	api.NewServer(sessions, loader, bridges).Register(mux)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	// ── Config hot-reload (log levels only)
	watcher, err := config.Watch(opt.CfgPath, nil)
	if err != nil {
		log.Warnw("config watcher unavailable", "err", err)
	} else {
		defer watcher.Close()
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on http://%s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Infof("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
