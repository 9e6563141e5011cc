// Package sloghooks implements datasync.Hooks on log/slog with optional
// sampling, so chatty events (self-heals, stale serves) don't flood logs.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/nutrilog/datasync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StaleServedEvery uint64
	SelfHealEvery    uint64
	// Optional id/key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	staleCtr    atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ datasync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StaleServed(id string, cause error) {
	if h.l == nil || !sample(h.opts.StaleServedEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("datasync.stale_served",
		"id", h.redact(id),
		"cause", cause)
}

func (h *Hooks) PendingDropped(id, kind string, cause error) {
	if h.l == nil {
		return
	}
	h.l.Error("datasync.pending_dropped",
		"id", h.redact(id),
		"kind", kind,
		"cause", cause)
}

func (h *Hooks) QuerySelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("datasync.query_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("datasync.provider_set_rejected",
		"key", h.redact(storageKey))
}
