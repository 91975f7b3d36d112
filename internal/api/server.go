package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ory/herodot"

	"balancesheet-rag/internal/access"
	"balancesheet-rag/internal/auth"
	"balancesheet-rag/internal/chat"
	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/ingest"
	"balancesheet-rag/internal/models"
	"balancesheet-rag/internal/storage"
)

// Server exposes the ingestion and chat pipeline over HTTP.
type Server struct {
	mux       *http.ServeMux
	ingest    *ingest.Service
	engine    *chat.Engine
	resolver  *access.Resolver
	directory *access.Directory
	vectors   storage.VectorStore
	writer    *herodot.JSONWriter
	logger    *slog.Logger
	maxUpload int64
	debug     bool
}

// NewServer wires the HTTP surface. maxUpload bounds the accepted request
// body for document uploads; debug exposes internal error causes in
// responses and is off in production.
func NewServer(
	ingestSvc *ingest.Service,
	engine *chat.Engine,
	resolver *access.Resolver,
	directory *access.Directory,
	vectors storage.VectorStore,
	logger *slog.Logger,
	maxUpload int64,
	debug bool,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:       http.NewServeMux(),
		ingest:    ingestSvc,
		engine:    engine,
		resolver:  resolver,
		directory: directory,
		vectors:   vectors,
		writer:    herodot.NewJSONWriter(nil),
		logger:    logger,
		maxUpload: maxUpload,
		debug:     debug,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.Handle("POST /documents", s.authed(s.uploadDocument))
	s.mux.Handle("GET /documents", s.authed(s.listDocuments))
	s.mux.Handle("GET /documents/{id}", s.authed(s.getDocument))
	s.mux.Handle("POST /sessions", s.authed(s.createSession))
	s.mux.Handle("GET /sessions", s.authed(s.listSessions))
	s.mux.Handle("POST /sessions/{id}/messages", s.authed(s.postMessage))
	s.mux.Handle("GET /sessions/{id}/turns", s.authed(s.listTurns))
	s.mux.Handle("POST /sessions/{id}/close", s.authed(s.closeSession))
	s.mux.Handle("GET /scope", s.authed(s.getScope))
	s.mux.HandleFunc("GET /health", s.healthCheck)
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.directory, h)
}

// Handler returns the full middleware-wrapped handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.logger, s.mux)
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	// Multipart framing adds overhead beyond the document itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeFault(w, r, faults.New(faults.KindPayloadTooLarge, "upload exceeds the configured size limit"))
			return
		}
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Failed to read upload"))
		return
	}

	doc, err := s.ingest.Ingest(r.Context(), principal, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}

	response := &models.UploadResponse{
		Document: doc,
		Message:  "Document ingested successfully",
	}
	s.writer.WriteCreated(w, r, "/documents/"+doc.ID.String(), response)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	docs, err := s.ingest.ListDocuments(r.Context(), principal)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	response := &models.DocumentListResponse{
		Documents: docs,
		Count:     len(docs),
		User:      principal.Username,
	}
	s.writer.Write(w, r, response)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid document id"))
		return
	}
	doc, err := s.ingest.GetDocument(r.Context(), principal, id)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.writer.Write(w, r, doc)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	var req models.CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid request body"))
			return
		}
	}

	session, err := s.engine.CreateSession(r.Context(), principal, req.Title)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.writer.WriteCreated(w, r, "/sessions/"+session.ID.String(), session)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	sessions, err := s.engine.ListSessions(r.Context(), principal)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	response := &models.SessionListResponse{
		Sessions: sessions,
		Count:    len(sessions),
		User:     principal.Username,
	}
	s.writer.Write(w, r, response)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid session id"))
		return
	}

	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid request body"))
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Question must not be empty"))
		return
	}

	turn, err := s.engine.Submit(r.Context(), principal, sessionID, question)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.writer.Write(w, r, turn)
}

func (s *Server) listTurns(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid session id"))
		return
	}
	turns, err := s.engine.ListTurns(r.Context(), principal, sessionID)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	response := &models.TurnListResponse{
		Turns: turns,
		Count: len(turns),
	}
	s.writer.Write(w, r, response)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid session id"))
		return
	}
	session, err := s.engine.CloseSession(r.Context(), principal, sessionID)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.writer.Write(w, r, session)
}

func (s *Server) getScope(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	response := &models.ScopeResponse{
		User:      principal.Username,
		Role:      principal.Role,
		Verticals: s.resolver.AllowedVerticals(principal.Role, principal.Companies),
	}
	s.writer.Write(w, r, response)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := &models.HealthResponse{Status: "healthy"}
	counts, err := s.vectors.CountByVertical(r.Context())
	if err != nil {
		response.Status = "degraded"
	} else {
		response.Verticals = counts
	}
	s.writer.Write(w, r, response)
}

// Fault kinds outside herodot's built-in set.
var (
	errPayloadTooLarge = &herodot.DefaultError{
		StatusField: http.StatusText(http.StatusRequestEntityTooLarge),
		ErrorField:  "The uploaded document exceeds the allowed size",
		CodeField:   http.StatusRequestEntityTooLarge,
	}
	errUnsupportedMedia = &herodot.DefaultError{
		StatusField: http.StatusText(http.StatusUnsupportedMediaType),
		ErrorField:  "Only PDF uploads are supported",
		CodeField:   http.StatusUnsupportedMediaType,
	}
	errUpstreamUnavailable = &herodot.DefaultError{
		StatusField: http.StatusText(http.StatusServiceUnavailable),
		ErrorField:  "A required collaborator service is unavailable",
		CodeField:   http.StatusServiceUnavailable,
	}
	errGenerationTimeout = &herodot.DefaultError{
		StatusField: http.StatusText(http.StatusGatewayTimeout),
		ErrorField:  "Answer generation did not complete in time",
		CodeField:   http.StatusGatewayTimeout,
	}
)

// writeFault maps pipeline fault kinds onto HTTP status codes.
func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, err error) {
	reason := err.Error()
	switch faults.KindOf(err) {
	case faults.KindNotFound:
		s.writer.WriteError(w, r, herodot.ErrNotFound.WithReason(reason))
	case faults.KindAccessDenied:
		s.writer.WriteError(w, r, herodot.ErrForbidden.WithReason(reason))
	case faults.KindSessionClosed, faults.KindSessionBusy:
		s.writer.WriteError(w, r, herodot.ErrConflict.WithReason(reason))
	case faults.KindPayloadTooLarge:
		s.writer.WriteError(w, r, errPayloadTooLarge.WithReason(reason))
	case faults.KindUnsupportedMedia:
		s.writer.WriteError(w, r, errUnsupportedMedia.WithReason(reason))
	case faults.KindExtraction:
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason(reason))
	case faults.KindEmbeddingUnavailable, faults.KindRetrievalUnavailable:
		s.writer.WriteError(w, r, errUpstreamUnavailable.WithReason(reason))
	case faults.KindGenerationTimeout:
		s.writer.WriteError(w, r, errGenerationTimeout.WithReason(reason))
	case faults.KindGenerationError:
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason(reason))
	default:
		s.logger.Error("unclassified fault", "error", err)
		if s.debug {
			s.writer.WriteError(w, r, herodot.ErrInternalServerError.WithReason(reason))
			return
		}
		// Internal causes stay out of production responses.
		s.writer.WriteError(w, r, herodot.ErrInternalServerError)
	}
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}
