package pix

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"ludum/internal/model"
)

// Validity is how long a generated charge stays payable.
const Validity = 30 * time.Minute

const refPrefix = "ludum_"

var ErrExhausted = errors.New("could not generate a unique pix reference")

// Registry reserves a reference so no two in-flight charges share one.
// Reserve returns false when the reference is already taken.
type Registry interface {
	Reserve(ctx context.Context, reference string, ttl time.Duration) (bool, error)
}

// MemoryRegistry is the in-process Registry used when no shared store is
// wired. Entries are dropped once their charge expires.
type MemoryRegistry struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{used: make(map[string]time.Time)}
}

func (r *MemoryRegistry) Reserve(_ context.Context, reference string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for ref, deadline := range r.used {
		if now.After(deadline) {
			delete(r.used, ref)
		}
	}
	if _, taken := r.used[reference]; taken {
		return false, nil
	}
	r.used[reference] = now.Add(ttl)
	return true, nil
}

// Generator produces instant-transfer charges for a fixed merchant.
type Generator struct {
	domain   string
	merchant string
	city     string
	registry Registry
	now      func() time.Time
}

func NewGenerator(domain, merchant, city string, registry Registry) *Generator {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	return &Generator{
		domain:   domain,
		merchant: merchant,
		city:     city,
		registry: registry,
		now:      time.Now,
	}
}

// Generate returns a charge with a fresh unique reference. The reference
// suffix comes from crypto/rand; a handful of retries covers the
// vanishingly unlikely registry collision.
func (g *Generator) Generate(ctx context.Context) (model.PixCharge, error) {
	for attempt := 0; attempt < 5; attempt++ {
		ref, err := newReference()
		if err != nil {
			return model.PixCharge{}, err
		}
		ok, err := g.registry.Reserve(ctx, ref, Validity)
		if err != nil {
			return model.PixCharge{}, fmt.Errorf("reserving pix reference: %w", err)
		}
		if ok {
			return g.Charge(ref), nil
		}
	}
	return model.PixCharge{}, ErrExhausted
}

// Charge builds the charge for a known reference. Deterministic: the same
// reference always yields a byte-identical code.
func (g *Generator) Charge(reference string) model.PixCharge {
	return model.PixCharge{
		Reference: reference,
		Code:      g.Code(reference),
		ExpiresAt: g.now().Add(Validity),
	}
}

// Code renders the copy-and-paste payload. Fixed field order; the 6304
// terminator is a literal, no CRC16 is computed.
func (g *Generator) Code(reference string) string {
	return fmt.Sprintf("00020126580014%s0136%s5204000053039865802BR5913%s6008%s62070503***6304",
		g.domain, reference, g.merchant, g.city)
}

func newReference() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("reading random reference: %w", err)
	}
	return refPrefix + hex.EncodeToString(buf[:]), nil
}
