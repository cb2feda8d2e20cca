// Package server exposes the comparison engine over a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/thiagokokada/gitk-compare/internal/config"
	"github.com/thiagokokada/gitk-compare/internal/git"
	"github.com/thiagokokada/gitk-compare/internal/recent"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxBodyBytes      = 1 << 20
)

// Repository is the part of git.Service the handlers call.
type Repository interface {
	ReferenceNames(ctx context.Context) ([]string, error)
	Compare(ctx context.Context, a, b string) (git.ComparisonResult, error)
	CommitDetail(ctx context.Context, hash string) (git.CommitDetail, error)
	FileDiff(ctx context.Context, hash, path string) (git.FileDiff, error)
	CommitPatch(ctx context.Context, hash string) (git.CommitPatch, error)
}

// OpenFunc opens the repository containing repoPath.
type OpenFunc func(ctx context.Context, repoPath string) (Repository, error)

type Options struct {
	Open   OpenFunc
	Recent *recent.Store
	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS
	// headers.
	CORSOrigin string
	Logger     *slog.Logger
}

type Server struct {
	open       OpenFunc
	recent     *recent.Store
	corsOrigin string
	logger     *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Open == nil {
		return nil, errors.New("server: no repository opener")
	}
	store := opts.Recent
	if store == nil {
		var err error
		if store, err = recent.Open("", config.DefaultRecentLimit); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		open:       opts.Open,
		recent:     store,
		corsOrigin: opts.CORSOrigin,
		logger:     logger,
	}, nil
}

// Handler returns the API with its middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/branches", s.handleBranches)
	mux.HandleFunc("GET /api/compare", s.handleCompare)
	mux.HandleFunc("POST /api/commit-details", s.handleCommitDetails)
	mux.HandleFunc("POST /api/file-diff", s.handleFileDiff)
	mux.HandleFunc("POST /api/commit/{hash}", s.handleCommitPatch)
	mux.HandleFunc("GET /api/recent", s.handleRecentList)
	mux.HandleFunc("POST /api/recent", s.handleRecentAdd)
	mux.HandleFunc("DELETE /api/recent", s.handleRecentRemove)
	return s.withRequestID(s.withLogging(s.withCORS(mux)))
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
