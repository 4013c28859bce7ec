// Package publisher turns decisions into outbound posts, gated by a global
// cooldown between posts.
package publisher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"guardian-sentinel-bot/internal/avatar"
	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/internal/metrics"
	"guardian-sentinel-bot/internal/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrRejected marks a post refused by the platform as duplicate or forbidden.
var ErrRejected = errors.New("post rejected by platform")

const (
	DefaultCooldown = 60 * time.Second
	DefaultPenalty  = 5 * time.Minute
)

type Kind string

const (
	KindWhale    Kind = "whale"
	KindMarket   Kind = "market"
	KindBriefing Kind = "briefing"
)

type Outcome int

const (
	Published Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Platform publishes posts.
type Platform interface {
	Post(ctx context.Context, text string, image []byte) error
}

// ImageSource produces seeded images.
type ImageSource interface {
	Fetch(ctx context.Context, seed string) ([]byte, error)
}

// AuditSink receives a copy of every published alert.
type AuditSink interface {
	InsertAlert(entry memory.AlertEntry) error
}

// Draft is what the sentinel wants to say.
type Draft struct {
	Kind     Kind
	Token    string
	Amount   string
	Subject  string
	Decision types.Decision
	Body     string
	// Image, when set, is attached instead of a generated avatar.
	Image []byte
	// SeedKey distinguishes avatars of otherwise identical decisions.
	SeedKey string
}

type Options struct {
	Platform Platform
	Images   ImageSource
	Memory   *memory.Store
	Audit    AuditSink
	Metrics  *metrics.Metrics
	Cooldown time.Duration
	Penalty  time.Duration
	Now      func() time.Time
}

type Publisher struct {
	platform Platform
	images   ImageSource
	memory   *memory.Store
	audit    AuditSink
	metrics  *metrics.Metrics
	cooldown time.Duration
	penalty  time.Duration
	now      func() time.Time
	pick     func(n int) int

	mu          sync.Mutex
	lastPublish time.Time
}

func New(opts Options) *Publisher {
	p := &Publisher{
		platform: opts.Platform,
		images:   opts.Images,
		memory:   opts.Memory,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		cooldown: opts.Cooldown,
		penalty:  opts.Penalty,
		now:      opts.Now,
		pick:     rand.IntN,
	}
	if p.cooldown <= 0 {
		p.cooldown = DefaultCooldown
	}
	if p.penalty <= 0 {
		p.penalty = DefaultPenalty
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Publish renders and posts d unless the cooldown is still running.
func (p *Publisher) Publish(ctx context.Context, d Draft) (Outcome, error) {
	outcome, err := p.publish(ctx, d)
	if p.metrics != nil {
		p.metrics.Publishes.WithLabelValues(outcome.String()).Inc()
	}
	return outcome, err
}

func (p *Publisher) publish(ctx context.Context, d Draft) (Outcome, error) {
	options := templates[d.Kind]
	if len(options) == 0 {
		return Failed, errors.Errorf("no templates for %q posts", d.Kind)
	}

	now := p.now()
	if wait, ok := p.acquire(now); !ok {
		log.Infof("⏳ Cooldown active, skipping %s post for %s (%s left)", d.Kind, d.Token, wait.Round(time.Second))
		return Skipped, nil
	}

	stamp := fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8])
	text := render(options[p.pick(len(options))], d, stamp)

	image := d.Image
	if image == nil && p.images != nil {
		seed := avatar.Seed(d.Decision.UnitName, d.Decision.Ticker, d.Token, d.SeedKey)
		img, err := p.images.Fetch(ctx, seed)
		if err != nil {
			log.Warnf("⚠️ Image generation failed, posting text only: %v", err)
		} else {
			image = img
		}
	}

	err := p.platform.Post(ctx, text, image)
	if err != nil && errors.Is(err, ErrRejected) {
		log.Warnf("⚠️ Post rejected (%v), retrying text-only", err)
		text = fmt.Sprintf("[%s] %s", uuid.NewString()[:4], text)
		err = p.platform.Post(ctx, text, nil)
		if err != nil {
			until := p.penalize()
			log.Errorf("❌ Retry rejected as well, cooling down until %s: %v", until.Format(time.RFC3339), err)
			return Failed, errors.Wrap(err, "retry failed")
		}
	}
	if err != nil {
		log.Errorf("❌ Failed to publish %s post: %v", d.Kind, err)
		return Failed, errors.Wrap(err, "publish failed")
	}

	p.record(d, text, now)
	log.Infof("✅ Published %s post for %s", d.Kind, d.Token)
	return Published, nil
}

// acquire checks the cooldown and claims the publish slot in one step.
func (p *Publisher) acquire(now time.Time) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if elapsed := now.Sub(p.lastPublish); elapsed < p.cooldown {
		return p.cooldown - elapsed, false
	}
	p.lastPublish = now
	return 0, true
}

func (p *Publisher) penalize() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastPublish = p.now().Add(p.penalty)
	return p.lastPublish.Add(p.cooldown)
}

// LastPublish returns the time the cooldown is measured from.
func (p *Publisher) LastPublish() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPublish
}

func (p *Publisher) record(d Draft, text string, now time.Time) {
	entry := memory.AlertEntry{
		Timestamp:     now.UTC(),
		Token:         d.Token,
		Amount:        d.Amount,
		RiskLevel:     d.Decision.RiskLevel,
		Reason:        d.Decision.Reason,
		PublishedText: text,
	}

	if p.memory != nil {
		if err := p.memory.Update(func(r *memory.Record) error {
			r.AddAlert(entry)
			return nil
		}); err != nil {
			log.Errorf("❌ Failed to persist alert: %v", err)
		}
	}
	if p.audit != nil {
		if err := p.audit.InsertAlert(entry); err != nil {
			log.Errorf("❌ Failed to mirror alert: %v", err)
		}
	}
}
