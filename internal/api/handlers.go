package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest"
	"vectorbid/internal/ingest/dialect"
	"vectorbid/internal/optimizer"
	"vectorbid/internal/pipeline"
)

// maxUploadBytes bounds one package upload.
const maxUploadBytes = 32 << 20

type pipelineRequest struct {
	PreferencesText string               `json:"preferences_text"`
	Persona         string               `json:"persona,omitempty"`
	Context         *bid.ContextSnapshot `json:"context"`
	PackageID       string               `json:"package_id,omitempty"`
	K               int                  `json:"k,omitempty"`
}

func (q *pipelineRequest) toPipeline() pipeline.Request {
	return pipeline.Request{
		Ctx:       q.Context,
		Text:      q.PreferencesText,
		Persona:   q.Persona,
		PackageID: q.PackageID,
		TopK:      q.K,
	}
}

func (s *Server) handleParsePreferences(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}

	schema, err := s.app.ParsePreferences(r.Context(), req.toPipeline())
	if err != nil {
		fail(w, r, err)
		return
	}

	var unrecognized []string
	if u := schema.Source["unrecognized"]; u != "" {
		unrecognized = strings.Split(u, ",")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"preference_schema": schema,
		"confidence":        schema.Confidence,
		"method":            schema.Method(),
		"unrecognized":      unrecognized,
	})
}

type validateRequest struct {
	Schema  *bid.PreferenceSchema `json:"preference_schema"`
	Context *bid.ContextSnapshot  `json:"context"`
}

func (s *Server) handleValidateConstraints(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}
	if req.Schema == nil || req.Context == nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "preference_schema and context are required")
		return
	}
	if err := pipeline.ValidateSnapshot(req.Context); err != nil {
		fail(w, r, err)
		return
	}

	// Pack is advisory here; validation still works without one.
	pack, err := s.app.Packs.Load(r.Context(), req.Context.Airline, req.Context.Month)
	if err != nil {
		pack = nil
	}
	writeJSON(w, http.StatusOK, pipeline.ValidateConstraints(req.Schema, req.Context, pack))
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}

	b, res, err := s.app.Optimize(r.Context(), req.toPipeline())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates":        res.Candidates,
		"weights":           res.Weights,
		"optimizer_version": optimizer.OptimizerVersion,
		"legacy_mode":       b.LegacyMode,
		"warnings":          append(b.Warnings, res.Warnings...),
	})
}

type retuneRequest struct {
	Candidates   []bid.CandidateSchedule `json:"candidates"`
	WeightDeltas map[string]float64      `json:"weight_deltas"`
	PackageID    string                  `json:"package_id,omitempty"`
	Base         string                  `json:"base,omitempty"`
}

func (s *Server) handleRetune(w http.ResponseWriter, r *http.Request) {
	var req retuneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "candidates are required")
		return
	}

	var pkg *bid.BidPackage
	if req.PackageID != "" {
		var err error
		pkg, err = s.app.Packages.Get(r.Context(), req.PackageID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if req.Base == "" {
			req.Base = pkg.Base
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": s.app.Retune(req.Candidates, req.WeightDeltas, req.Base, pkg),
	})
}

type strategyRequest struct {
	pipelineRequest
	Candidates []bid.CandidateSchedule `json:"candidates"`
	Directives *bid.StrategyDirectives `json:"directives,omitempty"`
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "candidates are required")
		return
	}

	b, err := s.app.Enrich(r.Context(), req.toPipeline())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"directives": s.app.Strategize(r.Context(), b, req.Candidates),
	})
}

func (s *Server) handleGenerateLayers(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "candidates are required")
		return
	}

	b, err := s.app.Enrich(r.Context(), req.toPipeline())
	if err != nil {
		fail(w, r, err)
		return
	}

	candidates := req.Candidates
	if req.Directives != nil && len(req.Directives.WeightDeltas) > 0 {
		candidates = s.app.Retune(candidates, req.Directives.WeightDeltas, b.Ctx.Base, b.Package)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"artifact": s.app.GenerateLayers(r.Context(), b, candidates),
	})
}

type lintRequest struct {
	Artifact  *bid.BidLayerArtifact `json:"artifact"`
	PackageID string                `json:"package_id,omitempty"`
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	var req lintRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}
	if req.Artifact == nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "artifact is required")
		return
	}

	report, err := s.app.LintArtifact(r.Context(), req.Artifact, req.PackageID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lint": report})
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}

	res, err := s.app.Run(r.Context(), req.toPipeline())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type exportRequest struct {
	Artifact *bid.BidLayerArtifact `json:"artifact"`
	Context  *bid.ContextSnapshot  `json:"context"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid JSON: "+err.Error())
		return
	}
	if req.Artifact == nil || req.Context == nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "artifact and context are required")
		return
	}

	res, err := s.app.Export(r.Context(), req.Artifact, req.Context)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"export_id":   res.Record.ExportID,
		"bytes":       base64.StdEncoding.EncodeToString(res.Body),
		"export_hash": res.Record.ArtifactHash,
		"signature":   res.Record.Signature,
		"issued_at":   res.Record.IssuedAt.Format(time.RFC3339Nano),
		"filename":    res.Filename,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "file is required")
		return
	}
	defer file.Close()

	meta := ingest.Meta{
		Airline: r.FormValue("airline"),
		Month:   r.FormValue("month"),
		Base:    r.FormValue("base"),
		Fleet:   r.FormValue("fleet"),
		Seat:    r.FormValue("seat"),
		PilotID: r.FormValue("pilot_id"),
	}
	if meta.Airline == "" || !bid.ValidMonth(meta.Month) || meta.Base == "" {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "airline, month (YYYY-MM), and base are required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, pipeline.KindBadInput, "read upload: "+err.Error())
		return
	}

	pkg, existed, err := s.app.Packages.Ingest(r.Context(), meta, data, header.Filename)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !existed {
		s.app.CountIngest()
	}
	s.app.Events.PackageIngested(pkg, existed)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_id": pkg.PackageID,
		"existed":    existed,
		"summary":    pkg.Summary(),
	})
}

func (s *Server) handleMetaParsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"supported_formats": ingest.Default().Names(),
		"dialects":          dialect.Airlines(),
		"required_fields":   []string{"airline", "month", "base", "fleet", "seat"},
	})
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.app.Packages.List(r.Context(), q.Get("airline"), q.Get("month"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []ingest.IndexEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"packages": entries})
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.app.Packages.Get(r.Context(), chi.URLParam(r, "package_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_id":    pkg.PackageID,
		"airline":       pkg.Airline,
		"month":         pkg.Month,
		"base":          pkg.Base,
		"fleet":         pkg.Fleet,
		"seat":          pkg.Seat,
		"source_format": pkg.SourceFormat,
		"uploaded_at":   pkg.UploadedAt,
		"summary":       pkg.Summary(),
	})
}

func (s *Server) handleListRulePacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.app.Packs.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule_packs": packs})
}

func (s *Server) handleGetRulePack(w http.ResponseWriter, r *http.Request) {
	pack, err := s.app.Packs.Load(r.Context(), chi.URLParam(r, "airline"), chi.URLParam(r, "month"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pack)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.Audit.GetExport(r.Context(), chi.URLParam(r, "export_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Counters())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.app.CheckHealth(r.Context())
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}
