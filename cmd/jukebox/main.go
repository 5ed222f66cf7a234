package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rdvm/jukebox/internal/auth"
	"github.com/rdvm/jukebox/internal/config"
	"github.com/rdvm/jukebox/internal/engine"
	"github.com/rdvm/jukebox/internal/gateway"
	"github.com/rdvm/jukebox/internal/hub"
	"github.com/rdvm/jukebox/internal/repository"
	"github.com/rdvm/jukebox/internal/resolver"
	"github.com/rdvm/jukebox/internal/sequencer"
	"github.com/rs/cors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)

	var spotify *resolver.SpotifyClient
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		spotify, err = resolver.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			slog.Warn("spotify client unavailable", "err", err)
		}
	}
	res := resolver.NewResolver(cfg.SearchTimeout, spotify)

	link := engine.NewLink(cfg.MPVPath, cfg.MPVSocket, repo)
	h := hub.NewHub()
	seq := sequencer.NewSequencer(repo, link, res, func(st sequencer.Status) {
		h.Broadcast("status", st)
	})
	authSvc := auth.NewService(cfg.TokenSecret, repo)
	gw := gateway.NewGateway(authSvc, h, seq, link, res, repo)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go link.Run(ctx)
	go dispatchEvents(ctx, link, seq, h)

	mux := http.NewServeMux()
	authSvc.Routes(mux)
	mux.HandleFunc("/ws", gw.ServeWS)
	if cfg.PublicDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: cors.AllowAll().Handler(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// dispatchEvents is the single consumer of the engine's event stream. State
// snapshots fan out to observers; a natural end of track advances the queue.
func dispatchEvents(ctx context.Context, link *engine.Link, seq *sequencer.Sequencer, h *hub.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-link.Events():
			switch ev.Kind {
			case engine.EventState:
				h.Broadcast("playerState", ev.State)
			case engine.EventTrackEnded:
				if err := seq.Skip(ctx); err != nil {
					slog.Error("advance after track end", "err", err)
				}
			}
		}
	}
}
