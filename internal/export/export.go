// Package export renders bid-layer artifacts into the canonical PBS2
// text form, hashes and signs the bytes, and appends a pseudonymized
// audit record. The rendering is byte-stable: the same artifact always
// produces the same bytes, hash, and signature.
package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vectorbid/internal/bid"
	"vectorbid/internal/events"
	"vectorbid/internal/redact"
)

// ErrNoSecret means the signing secret is unset; exports are refused
// rather than issued unsigned.
var ErrNoSecret = errors.New("export signing secret not configured")

// header and terminator of the canonical form.
const (
	formatLine = "PBS2/1.0"
	endLine    = "END"
)

// AuditStore is the slice of the audit backend the exporter needs.
type AuditStore interface {
	AppendExport(ctx context.Context, rec bid.ExportRecord) error
}

// Exporter signs canonical artifacts and records each issue.
type Exporter struct {
	secret []byte
	audit  AuditStore
	pub    *events.Publisher
	log    *zap.Logger
}

// New returns an exporter. secret may be empty, in which case Export
// fails with ErrNoSecret. pub may be nil.
func New(secret string, audit AuditStore, pub *events.Publisher, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{secret: []byte(secret), audit: audit, pub: pub, log: log}
}

// Result is one issued export.
type Result struct {
	Record   bid.ExportRecord
	Body     []byte // canonical PBS2 text
	Filename string
}

// Export renders, hashes, signs, and audits the artifact. The artifact's
// ExportHash field is filled in on success.
func (e *Exporter) Export(ctx context.Context, art *bid.BidLayerArtifact, snap *bid.ContextSnapshot) (Result, error) {
	if len(e.secret) == 0 {
		return Result{}, ErrNoSecret
	}

	body := Canonical(art)
	hash := hashBytes(body)
	art.ExportHash = hash

	rec := bid.ExportRecord{
		ExportID:     uuid.NewString(),
		ArtifactHash: hash,
		Signature:    e.sign(body),
		IssuedAt:     time.Now().UTC(),
		CtxID:        snap.CtxID,
		PilotHash:    redact.Hash(snap.PilotID),
	}

	if err := e.audit.AppendExport(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("audit export: %w", err)
	}
	e.pub.ExportIssued(rec)
	e.log.Info("export issued",
		zap.String("export_id", rec.ExportID),
		zap.String("artifact_hash", hash),
		zap.Int("layers", len(art.Layers)))

	return Result{
		Record:   rec,
		Body:     body,
		Filename: fmt.Sprintf("%s-%s-bid.pbs2", strings.ToLower(art.Airline), art.Month),
	}, nil
}

// Verify reports whether sig is a valid signature over body.
func (e *Exporter) Verify(body []byte, sig string) bool {
	if len(e.secret) == 0 {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, e.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func (e *Exporter) sign(body []byte) string {
	mac := hmac.New(sha256.New, e.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Canonical renders the artifact as PBS2 text. LF line endings, no
// timestamps, filters in their stored (canonicalized) order.
func Canonical(art *bid.BidLayerArtifact) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", formatLine)
	fmt.Fprintf(&buf, "AIRLINE %s\n", art.Airline)
	fmt.Fprintf(&buf, "MONTH %s\n", art.Month)
	fmt.Fprintf(&buf, "LAYERS %d\n", len(art.Layers))
	for _, l := range art.Layers {
		fmt.Fprintf(&buf, "LAYER %d PREFER %s\n", l.N, l.Prefer)
		for _, f := range l.Filters {
			fmt.Fprintf(&buf, "  FILTER %s %s %s\n", f.Type, opWord(f.Op), strings.Join(f.Values, ","))
		}
	}
	buf.WriteString(endLine + "\n")
	return buf.Bytes()
}

// opWord maps list operators to their uppercase keyword form; comparison
// operators render as-is.
func opWord(op string) string {
	switch op {
	case bid.OpIn:
		return "IN"
	case bid.OpNotIn:
		return "NOT_IN"
	case bid.OpBetween:
		return "BETWEEN"
	}
	return op
}
