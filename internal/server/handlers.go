package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/thiagokokada/gitk-compare/internal/git"
	"github.com/thiagokokada/gitk-compare/internal/recent"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errBadRequest)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, git.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, git.ErrMalformedReference),
		errors.Is(err, recent.ErrEmptyPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage strips the sentinel suffix added by badRequest.
func errorMessage(err error) string {
	if errors.Is(err, errBadRequest) {
		return strings.TrimSuffix(err.Error(), ": "+errBadRequest.Error())
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestID(r.Context())),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func (s *Server) openRepo(r *http.Request, repoPath string) (Repository, error) {
	if strings.TrimSpace(repoPath) == "" {
		return nil, badRequest("Missing required parameter: path")
	}
	return s.open(r.Context(), repoPath)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	repoPath := r.URL.Query().Get("path")
	repo, err := s.openRepo(r, repoPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names, err := repo.ReferenceNames(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.recent.Add(repoPath); err != nil {
		s.logger.Warn("record recent repository",
			slog.String("path", repoPath),
			slog.Any("error", err),
		)
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branch1, branch2 := q.Get("branch1"), q.Get("branch2")
	if branch1 == "" || branch2 == "" {
		s.writeError(w, r, badRequest("Missing required parameters: branch1 or branch2"))
		return
	}
	repo, err := s.openRepo(r, q.Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := repo.Compare(r.Context(), branch1, branch2)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type commitRequest struct {
	RepoPath   string `json:"repoPath"`
	CommitHash string `json:"commitHash"`
	FilePath   string `json:"filePath"`
}

func (s *Server) handleCommitDetails(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RepoPath == "" || req.CommitHash == "" {
		s.writeError(w, r, badRequest("Missing required parameters: repoPath or commitHash"))
		return
	}
	repo, err := s.openRepo(r, req.RepoPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := repo.CommitDetail(r.Context(), req.CommitHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleFileDiff(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RepoPath == "" || req.CommitHash == "" || req.FilePath == "" {
		s.writeError(w, r, badRequest("Missing required parameters: repoPath, commitHash, or filePath"))
		return
	}
	repo, err := s.openRepo(r, req.RepoPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	diff, err := repo.FileDiff(r.Context(), req.CommitHash, req.FilePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleCommitPatch(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	repo, err := s.openRepo(r, req.RepoPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := repo.CommitPatch(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patch)
}

func (s *Server) handleRecentList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recent.List())
}

func (s *Server) handleRecentAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	paths, err := s.recent.Add(req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paths)
}

func (s *Server) handleRecentRemove(w http.ResponseWriter, r *http.Request) {
	paths, err := s.recent.Remove(r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paths)
}
