// Package events publishes pipeline lifecycle events to NATS. Publishing
// is fire-and-forget: a down broker degrades to warning logs, never to
// request failures.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vectorbid/internal/bid"
)

// Subjects.
const (
	SubjectPackageIngested = "vectorbid.package.ingested"
	SubjectExportIssued    = "vectorbid.export.issued"
)

// Publisher emits events when connected; a zero-value or nil Publisher
// is a no-op.
type Publisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

// Connect dials the broker. An empty URL returns a disabled publisher.
func Connect(url string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if url == "" {
		return &Publisher{log: log}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("vectorbid"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, log: log}, nil
}

// Enabled reports whether a broker connection exists.
func (p *Publisher) Enabled() bool { return p != nil && p.nc != nil }

// Close drains the connection.
func (p *Publisher) Close() {
	if p.Enabled() {
		_ = p.nc.Drain()
	}
}

// PackageIngestedEvent is the payload for SubjectPackageIngested.
type PackageIngestedEvent struct {
	PackageID string    `json:"package_id"`
	Airline   string    `json:"airline"`
	Month     string    `json:"month"`
	Base      string    `json:"base"`
	Trips     int       `json:"trips"`
	Existed   bool      `json:"existed"`
	At        time.Time `json:"at"`
}

// PackageIngested publishes a package-ingested event.
func (p *Publisher) PackageIngested(pkg *bid.BidPackage, existed bool) {
	if !p.Enabled() || pkg == nil {
		return
	}
	p.publish(SubjectPackageIngested, PackageIngestedEvent{
		PackageID: pkg.PackageID,
		Airline:   pkg.Airline,
		Month:     pkg.Month,
		Base:      pkg.Base,
		Trips:     len(pkg.Pairings),
		Existed:   existed,
		At:        time.Now().UTC(),
	})
}

// ExportIssuedEvent is the payload for SubjectExportIssued. It carries
// only hashes, never pilot identifiers.
type ExportIssuedEvent struct {
	ExportID     string    `json:"export_id"`
	CtxID        string    `json:"ctx_id"`
	ArtifactHash string    `json:"artifact_hash"`
	PilotHash    string    `json:"pilot_hash"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ExportIssued publishes an export-issued event.
func (p *Publisher) ExportIssued(rec bid.ExportRecord) {
	if !p.Enabled() {
		return
	}
	p.publish(SubjectExportIssued, ExportIssuedEvent{
		ExportID:     rec.ExportID,
		CtxID:        rec.CtxID,
		ArtifactHash: rec.ArtifactHash,
		PilotHash:    rec.PilotHash,
		IssuedAt:     rec.IssuedAt,
	})
}

func (p *Publisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("encode event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}
