// Package api exposes the bid pipeline over REST. Chi router, JSON
// bodies, taxonomy errors as {error: {code, message}, request_id}.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vectorbid/internal/pipeline"
)

// Server wires the pipeline App into HTTP handlers.
type Server struct {
	app          *pipeline.App
	apiKeyExport string
	log          *zap.Logger
}

// New builds a server. An empty export key leaves /api/export open;
// production deployments set API_KEY_EXPORT.
func New(app *pipeline.App, apiKeyExport string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	app.Normalize()
	return &Server{app: app, apiKeyExport: apiKeyExport, log: log}
}

// Router returns the fully wired chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.app.Deadline))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handlePing)

	r.Route("/api", func(r chi.Router) {
		r.Post("/parse_preferences", s.handleParsePreferences)
		r.Post("/validate_constraints", s.handleValidateConstraints)
		r.Post("/optimize", s.handleOptimize)
		r.Post("/optimize/retune", s.handleRetune)
		r.Post("/strategy", s.handleStrategy)
		r.Post("/generate_layers", s.handleGenerateLayers)
		r.Post("/lint", s.handleLint)
		r.Post("/pipeline", s.handlePipeline)
		r.With(s.requireExportKey).Post("/export", s.handleExport)

		r.Post("/ingest", s.handleIngest)
		r.Get("/meta/parsers", s.handleMetaParsers)
		r.Get("/packages", s.handleListPackages)
		r.Get("/packages/{package_id}", s.handleGetPackage)

		r.Get("/rule-packs", s.handleListRulePacks)
		r.Get("/rule-packs/{airline}/{month}", s.handleGetRulePack)

		r.Get("/exports/{export_id}", s.handleGetExport)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// requestID echoes or mints X-Request-ID and threads a request-scoped
// logger through the context.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		log := s.log.With(zap.String("request_id", id))
		ctx := pipeline.WithLogger(r.Context(), log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireExportKey validates the export API key. Accepted as X-API-Key,
// Authorization: Bearer, or ?api_key=.
func (s *Server) requireExportKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeyExport == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}

		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "API key required")
			return
		}
		if key != s.apiKeyExport {
			writeError(w, r, http.StatusForbidden, "forbidden", "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	body.RequestID = w.Header().Get("X-Request-ID")
	writeJSON(w, status, body)
}

// fail maps a pipeline error onto the response taxonomy.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	pe := pipeline.Classify(err)
	if pe.HTTPStatus() >= 500 {
		pipeline.Logger(r.Context()).Error("request failed", zap.Error(err))
	}
	writeError(w, r, pe.HTTPStatus(), pe.Kind, pe.Message)
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
