// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/assistant"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/auth"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/credentials"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/dispatch"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metadata"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// Upload parts above this size spill from memory to temp files.
	multipartMemory = 32 << 20
)

// HistoryReader reads chat history for a connection.
type HistoryReader interface {
	ListHistory(ctx context.Context, connectionID string, limit int) ([]metadata.HistoryRow, error)
}

// Server is the HTTP server.
type Server struct {
	assistant       *assistant.Service
	registry        *credentials.Registry
	client          *smb.Client
	dispatcher      *dispatch.Dispatcher
	auth            *auth.Auth
	history         HistoryReader
	maxRequestBytes int64
	maxUploadBytes  int64
}

// NewServer creates a new server.
func NewServer(svc *assistant.Service, registry *credentials.Registry, client *smb.Client,
	authHandler *auth.Auth, history HistoryReader, maxRequestBytes, maxUploadBytes int64) *Server {
	return &Server{
		assistant:       svc,
		registry:        registry,
		client:          client,
		dispatcher:      dispatch.New(client),
		auth:            authHandler,
		history:         history,
		maxRequestBytes: maxRequestBytes,
		maxUploadBytes:  maxUploadBytes,
	}
}

// Handler returns the HTTP handler with auth and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	handle(mux, "GET /health", s.handleHealth)
	handle(mux, "POST /api/v1/auth/connect", s.handleConnect)

	// Protected endpoints
	protected := http.NewServeMux()
	handle(protected, "POST /api/v1/ai/chat", s.handleChat)
	handle(protected, "GET /api/v1/ai/history", s.handleHistory)
	handle(protected, "GET /api/v1/files", s.handleListFiles)
	handle(protected, "GET /api/v1/files/breakdown", s.handleBreakdown)
	handle(protected, "GET /api/v1/files/count", s.handleCount)
	handle(protected, "GET /api/v1/files/download", s.handleDownload)
	handle(protected, "POST /api/v1/files/upload", s.handleUpload)
	handle(protected, "POST /api/v1/files/folders", s.handleCreateFolder)
	handle(protected, "POST /api/v1/files/move", s.handleMove)

	mux.Handle("/api/v1/", metrics.Route(s.auth.Middleware(protected)))

	return metrics.Middleware(logging.Middleware(mux))
}

func handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, metrics.Route(h))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type connectRequest struct {
	Host     string `json:"host"`
	Share    string `json:"share"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Host == "" || req.Share == "" || req.Username == "" || req.Password == "" {
		sendError(w, http.StatusBadRequest, "host, share, username and password are required")
		return
	}

	creds := smb.Credentials{Host: req.Host, Share: req.Share, Username: req.Username, Password: req.Password}
	id, err := s.registry.Register(r.Context(), creds)
	switch {
	case errors.Is(err, smb.ErrInvalidCredentials):
		sendError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, smb.ErrAuthentication):
		sendError(w, http.StatusUnauthorized, "Failed to connect to the share: check host, share and credentials")
		return
	case err != nil:
		s.sendFailure(w, r, err)
		return
	}

	token, expires, err := s.auth.Issue(id, req.Username)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"token":         token,
		"expires_at":    expires,
		"connection_id": id,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.Request
	if !s.decode(w, r, &req) {
		return
	}
	claims := auth.GetClaims(r.Context())

	resp, err := s.assistant.Chat(r.Context(), claims.ConnectionID, req)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	claims := auth.GetClaims(r.Context())
	rows, err := s.history.ListHistory(r.Context(), claims.ConnectionID, limit)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	if rows == nil {
		rows = []metadata.HistoryRow{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"history": rows})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	creds, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var files []listing.FileEntry
	err := s.client.WithSession(r.Context(), creds, func(sess *smb.Session) error {
		var err error
		files, err = sess.List(r.Context(), path)
		return err
	})
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	if files == nil {
		files = []listing.FileEntry{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"path": path, "files": files})
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var totals map[listing.Category]uint64
	err := s.client.WithSession(r.Context(), creds, func(sess *smb.Session) error {
		var err error
		totals, err = sess.Breakdown(r.Context(), "")
		return err
	})
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	var total uint64
	for _, n := range totals {
		total += n
	}
	sendJSON(w, http.StatusOK, map[string]any{"categories": totals, "total": total})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, intent.CountFiles{Path: r.URL.Query().Get("path")})
}

type folderRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, intent.CreateFolder{Path: req.Path})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req intent.Move
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, req)
}

// dispatch runs a non-destructive action directly, without going through
// the chat classifier or its history.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, a intent.Action) {
	creds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, err := s.dispatcher.Dispatch(r.Context(), a, creds, false)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("path")
	name := shareBase(file)
	if name == "" {
		sendError(w, http.StatusBadRequest, "path is required")
		return
	}
	creds, ok := s.lookup(w, r)
	if !ok {
		return
	}

	dir, err := os.MkdirTemp("", "nas-download-")
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "content")
	err = s.client.WithSession(r.Context(), creds, func(sess *smb.Session) error {
		return sess.Download(r.Context(), file, local)
	})
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	f, err := os.Open(local)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		sendError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	src, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer src.Close()
	dir := r.FormValue("path")

	creds, ok := s.lookup(w, r)
	if !ok {
		return
	}

	tmp, err := os.CreateTemp("", "nas-upload-")
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	var dest string
	err = s.client.WithSession(r.Context(), creds, func(sess *smb.Session) error {
		var err error
		dest, err = sess.Upload(r.Context(), tmp.Name(), dir, header.Filename)
		return err
	})
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, map[string]any{
		"message": "Successfully uploaded " + dest,
		"path":    dest,
		"size":    header.Size,
	})
}

// shareBase returns the last element of a share path written with either
// separator.
func shareBase(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, `\`, "/"), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return strings.TrimSpace(p)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (smb.Credentials, bool) {
	claims := auth.GetClaims(r.Context())
	creds, err := s.registry.Lookup(r.Context(), claims.ConnectionID)
	if err != nil {
		s.sendFailure(w, r, err)
		return smb.Credentials{}, false
	}
	return creds, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		sendError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var cmdErr *smb.CommandError
	var execErr *remote.ExecutionError
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return http.StatusNotFound
	case dispatch.KindOf(err) == dispatch.KindValidation,
		errors.Is(err, smb.ErrInvalidPath),
		errors.Is(err, smb.ErrInvalidCredentials):
		return http.StatusBadRequest
	case dispatch.KindOf(err) == dispatch.KindAuthentication,
		dispatch.KindOf(err) == dispatch.KindRemote,
		errors.Is(err, smb.ErrAuthentication),
		errors.As(err, &cmdErr),
		errors.As(err, &execErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) sendFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed", zap.Error(err))
		msg = "Internal server error"
	}
	sendError(w, code, msg)
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, map[string]string{"error": message})
}
