package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vectorbid/internal/bid"
	"vectorbid/internal/enrich"
	"vectorbid/internal/export"
	"vectorbid/internal/ingest"
	"vectorbid/internal/pipeline"
	"vectorbid/internal/prefs"
	"vectorbid/internal/rulepack"
	"vectorbid/internal/storage"

	_ "vectorbid/internal/ingest/dialect/ual"
)

const packYAML = `version: ual-2025-09.1
airline: UAL
month: 2025-09
hard_rules:
  - id: far117_max_duty
    description: duty day over the FAR-117 cap
    severity: error
    check: pairing.max_duty_minutes <= far117.max_duty_minutes
soft_rules:
  - name: credit
    description: credit toward the window
    score: candidate.credit_minutes
    bounds: [3900, 5700]
    weight: 1.0
constants:
  min_credit_minutes: 3900
  max_credit_minutes: 5700
meta:
  expression_dialect: vectorbid/v1
`

const packageText = `PAIRING C100 EQP 73G
DATES 2025-09-02 2025-09-03
CREDIT 36:40 BLOCK 30:00
RPT 0900 RLS 1800
ROUTE DEN-SFO-DEN
LAYOVER SFO 16:00
END
PAIRING C200 EQP 73G
DATES 2025-09-08 2025-09-09
CREDIT 31:40 BLOCK 26:00
RPT 0900 RLS 1800
ROUTE DEN-ORD-DEN
LAYOVER ORD 14:00
END
PAIRING C300 EQP 73G
DATES 2025-09-15 2025-09-16
CREDIT 25:00 BLOCK 20:00
RPT 0900 RLS 1800
ROUTE DEN-IAH-DEN
LAYOVER IAH 14:00
END
`

type testEnv struct {
	srv       *httptest.Server
	packageID string
}

func newTestEnv(t *testing.T, exportKey string) *testEnv {
	t.Helper()

	packDir := t.TempDir()
	dir := filepath.Join(packDir, "UAL")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2025-09.yaml"), []byte(packYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	store := ingest.NewStore(t.TempDir(), nil, nil)
	meta := ingest.Meta{Airline: "UAL", Month: "2025-09", Base: "DEN", Fleet: "737", Seat: "FO"}
	pkg, _, err := store.Ingest(context.Background(), meta, []byte(packageText), "sep.txt")
	if err != nil {
		t.Fatalf("seed package: %v", err)
	}

	audit, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { audit.Close() })

	parser := prefs.NewParser(nil, nil)
	packs := rulepack.NewLoader(packDir, 4)
	app := &pipeline.App{
		Prefs:    parser,
		Enricher: enrich.New(parser, packs, store, nil, nil),
		Packs:    packs,
		Packages: store,
		Audit:    audit,
		Exporter: export.New("test-secret", audit, nil, nil),
	}

	srv := httptest.NewServer(New(app, exportKey, nil).Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, packageID: pkg.PackageID}
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}, headers map[string]string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp, out
}

func (e *testEnv) getJSON(t *testing.T, path string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp, out
}

func testContext() map[string]interface{} {
	return map[string]interface{}{
		"pilot_id":             "P100",
		"airline":              "UAL",
		"month":                "2025-09",
		"base":                 "DEN",
		"fleet":                "737",
		"seat":                 "FO",
		"seniority_percentile": 0.5,
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.getJSON(t, "/ping")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["ping"]) != `"pong"` {
		t.Errorf("body = %v", body)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.getJSON(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["status"]) != `"ok"` {
		t.Errorf("health = %v", body)
	}
}

func TestParsePreferences(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.postJSON(t, "/api/parse_preferences", map[string]interface{}{
		"preferences_text": "weekends off, no red eyes",
		"context":          testContext(),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if string(body["method"]) != `"rule_based"` {
		t.Errorf("method = %s, want rule_based with no LLM wired", body["method"])
	}

	var schema bid.PreferenceSchema
	if err := json.Unmarshal(body["preference_schema"], &schema); err != nil {
		t.Fatal(err)
	}
	if !schema.HardConstraints.NoRedEyes {
		t.Error("no_red_eyes not extracted")
	}
	if _, ok := schema.SoftPrefs["weekend_priority"]; !ok {
		t.Error("weekend_priority not extracted")
	}
}

func TestRequestIDEcho(t *testing.T) {
	env := newTestEnv(t, "")
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want echo", got)
	}
}

func TestValidateConstraints(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.postJSON(t, "/api/validate_constraints", map[string]interface{}{
		"context": testContext(),
		"preference_schema": map[string]interface{}{
			"confidence": 0.4,
			"soft_prefs": map[string]interface{}{
				"credit": map[string]interface{}{"direction": "prefer", "weight": 2.0},
			},
		},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if string(body["ok"]) != "false" {
		t.Errorf("ok = %s, want false for out-of-range weight", body["ok"])
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.postJSON(t, "/api/optimize", map[string]interface{}{
		"preferences_text": "maximize credit",
		"context":          testContext(),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}

	var candidates []bid.CandidateSchedule
	if err := json.Unmarshal(body["candidates"], &candidates); err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	for _, c := range candidates {
		if !c.HardOK {
			t.Errorf("candidate %s not hard-legal", c.CandidateID)
		}
		for _, v := range c.Violations {
			if v.Severity == bid.SeverityError {
				t.Errorf("candidate %s carries error violation %+v", c.CandidateID, v)
			}
		}
	}
	if string(body["optimizer_version"]) != `"optimizer/1"` {
		t.Errorf("optimizer_version = %s", body["optimizer_version"])
	}
}

func TestOptimizeMissingPackage(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := testContext()
	ctx["base"] = "EWR"
	resp, body := env.postJSON(t, "/api/optimize", map[string]interface{}{
		"preferences_text": "anything",
		"context":          ctx,
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %v", resp.StatusCode, body)
	}
	var eb struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	raw, _ := json.Marshal(body)
	if err := json.Unmarshal(raw, &eb); err != nil {
		t.Fatal(err)
	}
	if eb.Error.Code != pipeline.KindNotFound {
		t.Errorf("code = %s", eb.Error.Code)
	}
	if eb.RequestID == "" {
		t.Error("missing request_id in error body")
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.postJSON(t, "/api/pipeline", map[string]interface{}{
		"preferences_text": "weekends off, no red eyes",
		"persona":          "family_first",
		"context":          testContext(),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}

	var artifact bid.BidLayerArtifact
	if err := json.Unmarshal(body["artifact"], &artifact); err != nil {
		t.Fatal(err)
	}
	if len(artifact.Layers) == 0 {
		t.Fatal("no layers")
	}
	for i, l := range artifact.Layers {
		if l.N != i+1 {
			t.Errorf("layer %d numbered %d", i, l.N)
		}
	}
	if artifact.Format != bid.FormatPBS2 {
		t.Errorf("format = %s", artifact.Format)
	}
	if body["lint"] == nil {
		t.Error("missing lint report")
	}
}

func TestRetuneIdempotentOnEmptyDeltas(t *testing.T) {
	env := newTestEnv(t, "")
	_, opt := env.postJSON(t, "/api/optimize", map[string]interface{}{
		"preferences_text": "maximize credit",
		"context":          testContext(),
	}, nil)

	var candidates []bid.CandidateSchedule
	if err := json.Unmarshal(opt["candidates"], &candidates); err != nil {
		t.Fatal(err)
	}

	resp, body := env.postJSON(t, "/api/optimize/retune", map[string]interface{}{
		"candidates":    candidates,
		"weight_deltas": map[string]float64{},
		"package_id":    env.packageID,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}

	var retuned []bid.CandidateSchedule
	if err := json.Unmarshal(body["candidates"], &retuned); err != nil {
		t.Fatal(err)
	}
	if len(retuned) != len(candidates) {
		t.Fatalf("candidate count changed: %d vs %d", len(retuned), len(candidates))
	}
	for i := range retuned {
		if retuned[i].CandidateID != candidates[i].CandidateID {
			t.Errorf("order changed at %d", i)
		}
		if retuned[i].Score != candidates[i].Score {
			t.Errorf("score changed at %d: %v vs %v", i, retuned[i].Score, candidates[i].Score)
		}
	}
}

func TestExportRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, "sekrit")

	artifact := map[string]interface{}{
		"airline": "UAL", "month": "2025-09", "format": "PBS2",
		"layers": []map[string]interface{}{
			{"n": 1, "prefer": "YES", "filters": []map[string]interface{}{
				{"type": "pairing_id", "op": "=", "values": []string{"C100"}},
			}},
		},
	}
	payload := map[string]interface{}{"artifact": artifact, "context": testContext()}

	resp, _ := env.postJSON(t, "/api/export", payload, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", resp.StatusCode)
	}

	resp, _ = env.postJSON(t, "/api/export", payload, map[string]string{"X-API-Key": "wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status with bad key = %d, want 403", resp.StatusCode)
	}

	resp, body := env.postJSON(t, "/api/export", payload, map[string]string{"X-API-Key": "sekrit"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with key = %d: %v", resp.StatusCode, body)
	}
	if body["export_id"] == nil || body["signature"] == nil || body["bytes"] == nil {
		t.Errorf("export body = %v", body)
	}

	// Bearer form works too.
	resp, _ = env.postJSON(t, "/api/export", payload, map[string]string{"Authorization": "Bearer sekrit"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with bearer = %d", resp.StatusCode)
	}
}

func TestExportAuditRoundTrip(t *testing.T) {
	env := newTestEnv(t, "")
	payload := map[string]interface{}{
		"artifact": map[string]interface{}{
			"airline": "UAL", "month": "2025-09", "format": "PBS2",
			"layers": []map[string]interface{}{
				{"n": 1, "prefer": "YES", "filters": []map[string]interface{}{
					{"type": "pairing_id", "op": "=", "values": []string{"C100"}},
				}},
			},
		},
		"context": testContext(),
	}
	resp, body := env.postJSON(t, "/api/export", payload, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}

	var exportID string
	if err := json.Unmarshal(body["export_id"], &exportID); err != nil {
		t.Fatal(err)
	}

	getResp, rec := env.getJSON(t, "/api/exports/"+exportID)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get export status = %d", getResp.StatusCode)
	}
	if string(rec["export_id"]) != fmt.Sprintf("%q", exportID) {
		t.Errorf("stored export = %v", rec)
	}
}

func TestIngestMultipart(t *testing.T) {
	env := newTestEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "oct.txt")
	if err != nil {
		t.Fatal(err)
	}
	oct := `PAIRING D100 EQP 73G
DATES 2025-10-06 2025-10-07
CREDIT 20:00 BLOCK 17:00
RPT 0800 RLS 1700
ROUTE DEN-LAX-DEN
LAYOVER LAX 15:00
END
`
	if _, err := fw.Write([]byte(oct)); err != nil {
		t.Fatal(err)
	}
	for k, v := range map[string]string{
		"airline": "UAL", "month": "2025-10", "base": "DEN", "fleet": "737", "seat": "FO",
	} {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	resp, err := http.Post(env.srv.URL+"/api/ingest", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["package_id"] == nil {
		t.Fatal("missing package_id")
	}

	var summary bid.PackageSummary
	if err := json.Unmarshal(body["summary"], &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Trips != 1 {
		t.Errorf("trips = %d, want 1", summary.Trips)
	}
}

func TestMetaParsers(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.getJSON(t, "/api/meta/parsers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var formats, dialects []string
	if err := json.Unmarshal(body["supported_formats"], &formats); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(body["dialects"], &dialects); err != nil {
		t.Fatal(err)
	}
	if len(formats) == 0 {
		t.Error("no supported formats")
	}
	found := false
	for _, d := range dialects {
		if d == "UAL" {
			found = true
		}
	}
	if !found {
		t.Errorf("dialects = %v, want UAL present", dialects)
	}
}

func TestRulePackEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.getJSON(t, "/api/rule-packs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if body["rule_packs"] == nil {
		t.Fatal("missing rule_packs")
	}

	resp, pack := env.getJSON(t, "/api/rule-packs/UAL/2025-09")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if string(pack["version"]) != `"ual-2025-09.1"` {
		t.Errorf("pack = %v", pack)
	}

	resp, _ = env.getJSON(t, "/api/rule-packs/UAL/2024-01")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing pack status = %d, want 404", resp.StatusCode)
	}
}

func TestStatsCounters(t *testing.T) {
	env := newTestEnv(t, "")
	env.postJSON(t, "/api/pipeline", map[string]interface{}{
		"preferences_text": "maximize credit",
		"context":          testContext(),
	}, nil)

	resp, body := env.getJSON(t, "/api/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["pipeline_runs"]) != "1" {
		t.Errorf("pipeline_runs = %s, want 1", body["pipeline_runs"])
	}
}
