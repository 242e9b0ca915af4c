package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/interview-voice-lab/internal/analysis"
	"github.com/interview-voice-lab/internal/dialogue"
	"github.com/interview-voice-lab/internal/httpapi"
	"github.com/interview-voice-lab/internal/logging"
	"github.com/interview-voice-lab/internal/memory"
	"github.com/interview-voice-lab/internal/session"
	"github.com/interview-voice-lab/internal/store"
	"github.com/interview-voice-lab/internal/turn"
)

func main() {
	// Initialize centralized logging
	sugar := logging.Init()
	if sugar == nil {
		// fallback to a basic zap logger if initialization failed
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DATABASE_URL selects the persistent store; without it the service
	// runs on the in-memory store, which is fine for development and
	// single-node demos but loses state on restart.
	var (
		msgs     store.MessageStore
		sessions store.SessionStore
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		sugar.Infow("running migrations")
		if err := store.RunMigrations(dsn); err != nil {
			sugar.Fatalf("migrations: %v", err)
		}
		pg, err := store.NewPGStore(ctx, dsn)
		if err != nil {
			sugar.Fatalf("store.NewPGStore: %v", err)
		}
		defer pg.Close()
		msgs, sessions = pg, pg
		sugar.Infow("postgres store ready")
	} else {
		ms := store.NewMemStore()
		msgs, sessions = ms, ms
		sugar.Warnw("DATABASE_URL not set; using in-memory store")
	}

	mem := memory.New(msgs)

	var summarizer session.Summarizer
	if ac := analysis.NewClientFromEnv(); ac != nil {
		summarizer = ac
	} else {
		sugar.Warnw("ANALYSIS_URL not set; sessions complete without scoring")
	}
	machine := session.NewMachine(sessions, summarizer)

	engine := dialogue.NewClientFromEnv()
	orch := turn.NewOrchestrator(sessions, machine, mem, engine)

	srv := httpapi.NewServer(httpapi.Config{
		STTTokenURL:  os.Getenv("STT_TOKEN_URL"),
		STTAPIKey:    os.Getenv("STT_API_KEY"),
		STTStreamURL: os.Getenv("STT_STREAM_URL"),
		TTSTokenURL:  os.Getenv("TTS_TOKEN_URL"),
		TTSAPIKey:    os.Getenv("TTS_API_KEY"),
		TTSStreamURL: os.Getenv("TTS_STREAM_URL"),
		SaveAudioDir: os.Getenv("SAVE_AUDIO_DIR"),
	}, orch, machine, mem)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     srv.Routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: turn responses are long-lived SSE streams.
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		sugar.Infow("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("shutdown did not complete cleanly", "err", err)
	}
	sugar.Infow("interviewd stopped")
}
