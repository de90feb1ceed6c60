package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"character_asset_compiler/drafts"
	"character_asset_compiler/generator"
	"character_asset_compiler/logger"
	"character_asset_compiler/publisher"
)

const defaultRunTimeout = 10 * time.Minute

type Server struct {
	controller *generator.Controller
	drafts     *drafts.Store
	publisher  *publisher.Publisher
	log        *logger.Logger
	store      *sessionStore
	runTimeout time.Duration
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*generator.Session
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*generator.Session)}
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Option configures a Server.
type Option func(*Server)

// WithDrafts persists every session in store and serves stored runs.
func WithDrafts(store *drafts.Store) Option {
	return func(s *Server) { s.drafts = store }
}

func WithPublisher(p *publisher.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRunTimeout bounds one request's compilation work.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func New(controller *generator.Controller, opts ...Option) (*Server, error) {
	if controller == nil {
		return nil, errors.New("pipeline controller required")
	}
	s := &Server{
		controller: controller,
		log:        logger.Nop(),
		store:      newStore(),
		runTimeout: defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleRunCreate)
	mux.HandleFunc("GET /api/runs", s.handleRunList)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunGet)
	mux.HandleFunc("POST /api/runs/{id}/resume", s.handleRunResume)
	mux.HandleFunc("POST /api/runs/{id}/step", s.handleRunStep)
	mux.HandleFunc("POST /api/runs/{id}/revise", s.handleRunRevise)
	mux.HandleFunc("POST /api/runs/{id}/publish", s.handleRunPublish)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logMiddleware(mux)
}

// --- Handlers ---

type runCreateReq struct {
	Seed    string `json:"seed"`
	Mode    string `json:"mode"`
	OneShot bool   `json:"one_shot"`
}

type reviseReq struct {
	Kind    string `json:"kind"`
	Comment string `json:"comment"`
}

type runResp struct {
	ID       string            `json:"id"`
	Seed     string            `json:"seed"`
	Mode     generator.Mode    `json:"mode"`
	State    generator.State   `json:"state"`
	FailedAt int               `json:"failed_at"`
	Slug     string            `json:"slug"`
	Note     string            `json:"note,omitempty"`
	Assets   []generator.Asset `json:"assets"`
	History  []generator.Turn  `json:"history"`
	Error    *errorResp        `json:"error,omitempty"`
}

type errorResp struct {
	Step    *int           `json:"step,omitempty"`
	Kind    generator.Kind `json:"kind,omitempty"`
	Class   string         `json:"class"`
	Message string         `json:"message"`
	Excerpt string         `json:"excerpt,omitempty"`
}

type listResp struct {
	Runs []drafts.Record `json:"runs"`
}

type publishResp struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	PackDir string `json:"pack_dir"`
}

func (s *Server) handleRunCreate(w http.ResponseWriter, r *http.Request) {
	var req runCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &generator.ValidationError{Field: "body", Msg: err.Error()})
		return
	}
	if strings.TrimSpace(req.Seed) == "" {
		writeError(w, http.StatusBadRequest, &generator.ValidationError{Field: "seed", Msg: "seed is empty"})
		return
	}

	id := uuid.NewString()
	sess := generator.NewSession(id, req.Seed, generator.ParseMode(req.Mode), s.controller)
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	_, err := sess.Propose(ctx, req.OneShot)
	s.store.set(id, sess)
	s.persist(r.Context(), sess)
	s.log.Info("run created", "id", id, "one_shot", req.OneShot, "class", generator.ErrorClass(err))
	s.writeSession(w, sess, err)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.drafts == nil {
		writeJSON(w, http.StatusOK, listResp{Runs: []drafts.Record{}})
		return
	}
	runs, err := s.drafts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []drafts.Record{}
	}
	writeJSON(w, http.StatusOK, listResp{Runs: runs})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRunResp(sess))
}

func (s *Server) handleRunResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	_, err := sess.Resume(ctx)
	s.persist(r.Context(), sess)
	s.writeSession(w, sess, err)
}

func (s *Server) handleRunStep(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	_, err := sess.Step(ctx)
	s.persist(r.Context(), sess)
	s.writeSession(w, sess, err)
}

func (s *Server) handleRunRevise(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req reviseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &generator.ValidationError{Field: "body", Msg: err.Error()})
		return
	}
	kind, err := generator.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	_, err = sess.Revise(ctx, kind, req.Comment)
	s.persist(r.Context(), sess)
	s.writeSession(w, sess, err)
}

func (s *Server) handleRunPublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, http.StatusNotImplemented, errors.New("publishing is not configured"))
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	run, _ := sess.Snapshot()
	pack, err := publisher.PackFromRun(run)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	dir, err := s.publisher.Write(pack)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, publishResp{ID: sess.ID, Slug: pack.Slug, PackDir: dir})
}

// --- Helpers ---

// session finds the session for the request's {id}, restoring it from
// the draft store when it is not in memory.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*generator.Session, bool) {
	id := r.PathValue("id")
	if sess, ok := s.store.get(id); ok {
		return sess, true
	}
	if s.drafts != nil {
		rec, err := s.drafts.Get(r.Context(), id)
		if err == nil {
			run, err := rec.Run()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return nil, false
			}
			sess := generator.RestoreSession(id, run, s.controller)
			sess.History = rec.History
			s.store.set(id, sess)
			return sess, true
		}
		if !errors.Is(err, drafts.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err)
			return nil, false
		}
	}
	writeError(w, http.StatusNotFound, errors.New("run not found"))
	return nil, false
}

func (s *Server) persist(ctx context.Context, sess *generator.Session) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.Save(context.WithoutCancel(ctx), drafts.FromSession(sess)); err != nil {
		s.log.Error("failed to save run", "id", sess.ID, "error", err)
	}
}

func (s *Server) writeSession(w http.ResponseWriter, sess *generator.Session, err error) {
	resp := toRunResp(sess)
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = describe(err)
	writeJSON(w, statusFor(err), resp)
}

func toRunResp(sess *generator.Session) runResp {
	run, history := sess.Snapshot()
	resp := runResp{
		ID:       sess.ID,
		Seed:     sess.Seed,
		Mode:     sess.Mode,
		FailedAt: -1,
		Slug:     generator.FallbackSlug,
		Assets:   []generator.Asset{},
		History:  history,
	}
	if run != nil {
		resp.State = run.State
		resp.FailedAt = run.FailedAt()
		resp.Slug = run.Slug
		resp.Note = run.Note
		resp.Assets = run.Assets.Assets()
		if run.Err != nil {
			resp.Error = describe(run.Err)
		}
	}
	if resp.History == nil {
		resp.History = []generator.Turn{}
	}
	return resp
}

func describe(err error) *errorResp {
	out := &errorResp{Class: generator.ErrorClass(err), Message: err.Error()}
	var se *generator.StepError
	if errors.As(err, &se) {
		step := se.Step
		out.Step = &step
		out.Kind = se.Kind
	}
	var pe *generator.ParseError
	if errors.As(err, &pe) {
		out.Excerpt = pe.Excerpt
	}
	return out
}

func statusFor(err error) int {
	switch generator.ErrorClass(err) {
	case "parse", "validation":
		return http.StatusUnprocessableEntity
	case "upstream":
		return http.StatusBadGateway
	case "cancelled":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]*errorResp{"error": describe(err)})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		s.log.Info("http request",
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
