package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"vectorbid/internal/redact"
)

// ErrUnavailable means every configured model rung failed or was skipped
// by an open breaker.
var ErrUnavailable = errors.New("llm: no model available")

// Config wires the primary/secondary model ladder.
type Config struct {
	BaseURL          string
	SecondaryBaseURL string
	PrimaryModel     string
	SecondaryModel   string
	PrimaryKey       string
	SecondaryKey     string
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
	CacheTTL         time.Duration
	MaxTokens        int
	Temperature      float64
}

// DefaultConfig returns the stock timeouts and budgets. Model names stay
// empty; an adapter with no models is simply disabled.
func DefaultConfig() Config {
	return Config{
		PrimaryTimeout:   8 * time.Second,
		SecondaryTimeout: 4 * time.Second,
		CacheTTL:         5 * time.Minute,
		MaxTokens:        1024,
		Temperature:      0,
	}
}

// Adapter runs completions down the model ladder with per-model circuit
// breakers, a TTL response cache, and singleflight miss deduplication.
type Adapter struct {
	cfg      Config
	clients  []*Client
	breakers map[string]*gobreaker.CircuitBreaker
	cache    *gocache.Cache
	sf       singleflight.Group
	scrub    *redact.Scrubber
	log      *zap.Logger
}

// Result is one completion, annotated with the model that produced it.
type Result struct {
	Text   string
	Model  string
	Cached bool
}

// NewAdapter builds the ladder from the config. Rungs without both a
// model name and a base URL are skipped.
func NewAdapter(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	a := &Adapter{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cache:    gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		scrub:    redact.NewScrubber(),
		log:      log,
	}
	if cfg.BaseURL != "" && cfg.PrimaryModel != "" {
		a.addRung(NewClient(cfg.BaseURL, cfg.PrimaryKey, cfg.PrimaryModel, cfg.PrimaryTimeout))
	}
	secondaryURL := cfg.SecondaryBaseURL
	if secondaryURL == "" {
		secondaryURL = cfg.BaseURL
	}
	if secondaryURL != "" && cfg.SecondaryModel != "" {
		a.addRung(NewClient(secondaryURL, cfg.SecondaryKey, cfg.SecondaryModel, cfg.SecondaryTimeout))
	}
	return a
}

func (a *Adapter) addRung(c *Client) {
	a.clients = append(a.clients, c)
	a.breakers[c.Model()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-" + c.Model(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// Enabled reports whether at least one model rung is configured.
func (a *Adapter) Enabled() bool { return len(a.clients) > 0 }

// PrimaryModel returns the first rung's model name, or "".
func (a *Adapter) PrimaryModel() string {
	if len(a.clients) == 0 {
		return ""
	}
	return a.clients[0].Model()
}

// AddRedactValue registers an exact string (a profile name, an id) to be
// scrubbed from every outbound prompt.
func (a *Adapter) AddRedactValue(v string) { a.scrub.AddValue(v) }

// Complete runs the prompt down the ladder and returns the first success.
// Prompts are scrubbed before leaving the process; responses are cached
// by (model, prompt hash).
func (a *Adapter) Complete(ctx context.Context, system, user string) (Result, error) {
	if !a.Enabled() {
		return Result{}, ErrUnavailable
	}
	system = a.scrub.Scrub(system)
	user = a.scrub.Scrub(user)
	msgs := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	promptHash := sha256Hex(system + "\n\x00" + user)

	var lastErr error
	for _, c := range a.clients {
		key := c.Model() + ":" + promptHash
		if v, ok := a.cache.Get(key); ok {
			return Result{Text: v.(string), Model: c.Model(), Cached: true}, nil
		}

		v, err, _ := a.sf.Do(key, func() (interface{}, error) {
			if v, ok := a.cache.Get(key); ok {
				return v.(string), nil
			}
			out, err := a.breakers[c.Model()].Execute(func() (interface{}, error) {
				return c.Complete(ctx, msgs, a.cfg.MaxTokens, a.cfg.Temperature)
			})
			if err != nil {
				return nil, err
			}
			text := out.(string)
			a.cache.Set(key, text, gocache.DefaultExpiration)
			return text, nil
		})
		if err == nil {
			return Result{Text: v.(string), Model: c.Model()}, nil
		}
		lastErr = err
		a.log.Warn("llm rung failed",
			zap.String("model", c.Model()),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
