// Command bae-play serves resolved track streams over HTTP, using
// internal/playback to decide whether a request can be answered with a
// native Range-capable file handle or needs an assembled byte range.
//
// Grounded on services/api/cmd/main.go's router/middleware/graceful-
// shutdown shape and services/api/internal/stream/stream.go's Range
// handling — generalized so the Range decision (native file vs.
// assembled one-shot reader) is made by internal/playback.Resolve
// instead of stream.go's single always-ranged objstore.GetRange call.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/baebaebaebaebae/bae-core/internal/catalog"
	"github.com/baebaebaebaebae/bae-core/internal/config"
	"github.com/baebaebaebaebae/bae-core/internal/cryptostore"
	"github.com/baebaebaebaebae/bae-core/internal/objstore"
	"github.com/baebaebaebaebae/bae-core/internal/playback"
	"github.com/baebaebaebaebae/bae-core/internal/progress"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	dsn := config.DSN()
	storeBackend := config.Env("STORE_BACKEND", "local")
	storeRoot := config.Env("STORE_ROOT", "./data/audio")
	storeBucket := config.Env("STORE_BUCKET", "bae-audio")
	s3Endpoint := config.Env("S3_ENDPOINT", "http://localhost:9000")
	s3Key := config.Env("S3_ACCESS_KEY", "bae")
	s3Secret := config.Env("S3_SECRET_KEY", "baesecret")
	masterKeyHex := config.Env("MASTER_KEY_HEX", "")
	addr := config.Env("HTTP_ADDR", ":8090")

	store, err := catalog.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect catalog: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	obj, err := buildObjectStore(ctx, storeBackend, storeRoot, storeBucket, s3Endpoint, s3Key, s3Secret)
	if err != nil {
		return err
	}

	keyRing, err := loadKeyRing(masterKeyHex)
	if err != nil {
		return err
	}
	cs := cryptostore.New(obj, keyRing, cryptostore.DefaultChunkSize)

	bus := progress.New()

	resolver := playback.New(store, func(profile catalog.StorageProfile) (playback.StorageReader, error) {
		if !profile.Encrypted {
			return playback.NewPlainReader(obj), nil
		}
		return playback.NewEncryptedReader(cs, cryptostore.SchemeDerived, cryptostore.PolicyChunked), nil
	})

	h := &streamHandler{resolver: resolver, bus: bus}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Get("/healthz", healthz)
	r.Get("/tracks/{track_id}/stream", h.stream)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming — no write timeout
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func buildObjectStore(ctx context.Context, backend, root, bucket, endpoint, key, secret string) (objstore.ObjectStore, error) {
	switch backend {
	case "local":
		return objstore.NewLocalFS(root)
	case "s3":
		return objstore.NewS3(ctx, objstore.S3Config{Endpoint: endpoint, AccessKey: key, SecretKey: secret, Bucket: bucket})
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func loadKeyRing(hexKey string) (*cryptostore.KeyRing, error) {
	var keyBytes []byte
	if hexKey == "" {
		slog.Warn("no MASTER_KEY_HEX given; encrypted profiles will fail to decrypt")
		keyBytes = make([]byte, 32)
	} else {
		var err error
		keyBytes, err = hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("decode master key hex: %w", err)
		}
	}
	return cryptostore.NewKeyRing(keyBytes)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

// streamHandler serves GET /tracks/{track_id}/stream, honoring
// ?seek_sample=N to start playback mid-track via internal/playback's
// seektable lookup (spec.md §4.8's seeking rule).
type streamHandler struct {
	resolver *playback.Resolver
	bus      *progress.Bus
}

func (h *streamHandler) stream(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "track_id")

	var seek *playback.SeekTarget
	if raw := r.URL.Query().Get("seek_sample"); raw != "" {
		sample, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid seek_sample", http.StatusBadRequest)
			return
		}
		seek = &playback.SeekTarget{Sample: sample}
	}

	s, err := h.resolver.Resolve(r.Context(), trackID, seek)
	if err != nil {
		h.bus.Publish(progress.Failed(trackID, err, nil))
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}
	defer s.Reader.Close()
	h.bus.Publish(progress.Started(trackID, nil))

	w.Header().Set("Content-Type", s.ContentType)
	if s.DiscardSamples != 0 {
		w.Header().Set("X-Bae-Discard-Samples", strconv.FormatInt(s.DiscardSamples, 10))
	}

	if seeker, ok := s.Reader.(io.ReadSeeker); ok && s.Seekable {
		// Fast path: hand the real file to ServeContent so it negotiates
		// further HTTP Range requests itself instead of bae-play
		// reimplementing range parsing on top of an already-open handle.
		http.ServeContent(w, r, "", time.Time{}, seeker)
		return
	}

	w.Header().Set("Accept-Ranges", "none")
	buf := make([]byte, 64*1024)
	_, _ = io.CopyBuffer(w, s.Reader, buf)
}
