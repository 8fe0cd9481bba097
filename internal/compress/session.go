// Package compress adjusts image quality until a file fits the inscription
// size window and reports each result to the recalculation layer.
package compress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

var (
	// ErrNoFile is returned when a quality change is requested before Load.
	ErrNoFile = errors.New("no file loaded")
	// ErrNoFit is returned when no quality lands inside the size window.
	ErrNoFit = errors.New("no quality fits the size window")
	// ErrSuperseded is returned when a newer load or quality change
	// replaced the result before it was delivered.
	ErrSuperseded = errors.New("compression superseded")
)

// Compressor re-encodes a file at a quality between 1 and 100.
type Compressor interface {
	Compress(ctx context.Context, f *inscription.File, quality int) (*inscription.File, error)
}

// Sink receives compression results.
type Sink interface {
	CompressionUpdate(f *inscription.File, compressing bool)
}

// Session tracks one selected file and its current quality setting.
type Session struct {
	comp   Compressor
	sink   Sink
	logger zerolog.Logger

	mu       sync.Mutex
	original *inscription.File
	current  *inscription.File
	quality  int
	gen      uint64
}

// NewSession creates a session that reports to sink.
func NewSession(comp Compressor, sink Sink) *Session {
	return &Session{
		comp:    comp,
		sink:    sink,
		logger:  klog.WithComponent("compress"),
		quality: 100,
	}
}

// Load selects a new original. Quality resets to 100 and the original is
// passed through unchanged.
func (s *Session) Load(f *inscription.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.original = f
	s.current = f
	s.quality = 100
	s.sink.CompressionUpdate(f, false)
}

// Quality returns the current quality setting.
func (s *Session) Quality() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// Current returns the most recent result.
func (s *Session) Current() *inscription.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetQuality re-encodes the original at q. Quality 100 passes the original
// through. If compression fails the session falls back to the original and
// the error is returned alongside it.
func (s *Session) SetQuality(ctx context.Context, q int) (*inscription.File, error) {
	q = clampQuality(q)

	s.mu.Lock()
	if s.original == nil {
		s.mu.Unlock()
		return nil, ErrNoFile
	}
	s.gen++
	gen := s.gen
	original := s.original
	s.quality = q
	s.mu.Unlock()

	return s.apply(ctx, gen, original, q)
}

// apply encodes original at q on behalf of request gen.
func (s *Session) apply(ctx context.Context, gen uint64, original *inscription.File, q int) (*inscription.File, error) {
	if q == 100 {
		if s.deliver(gen, original, q) == nil {
			return nil, ErrSuperseded
		}
		return original, nil
	}

	if !s.begin(gen) {
		return nil, ErrSuperseded
	}
	out, err := s.comp.Compress(ctx, original, q)
	if err != nil {
		s.logger.Warn().Err(err).Int("quality", q).Msg("Compression failed, using original")
		if s.deliver(gen, original, q) == nil {
			return nil, ErrSuperseded
		}
		return original, fmt.Errorf("compress at quality %d: %w", q, err)
	}

	s.logger.Debug().
		Int("quality", q).
		Int64("original", original.Size()).
		Int64("compressed", out.Size()).
		Msg("Compressed")
	if s.deliver(gen, out, q) == nil {
		return nil, ErrSuperseded
	}
	return out, nil
}

// FitQuality searches for the highest quality whose output lands inside the
// size window and applies it. The original is kept when it already fits.
// A Load or quality change during the search ends it with ErrSuperseded.
func (s *Session) FitQuality(ctx context.Context) (int, *inscription.File, error) {
	s.mu.Lock()
	original := s.original
	if original == nil {
		s.mu.Unlock()
		return 0, nil, ErrNoFile
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	if inscription.IsSizeValid(original.Size()) {
		f, err := s.apply(ctx, gen, original, 100)
		return 100, f, err
	}

	if !s.begin(gen) {
		return 0, nil, ErrSuperseded
	}
	best := 0
	lo, hi := 1, 99
	for lo <= hi {
		if !s.latest(gen) {
			return 0, nil, ErrSuperseded
		}
		if err := ctx.Err(); err != nil {
			s.settle(gen)
			return 0, nil, err
		}
		mid := (lo + hi) / 2
		out, err := s.comp.Compress(ctx, original, mid)
		if err != nil {
			s.settle(gen)
			return 0, nil, fmt.Errorf("compress at quality %d: %w", mid, err)
		}
		switch n := out.Size(); {
		case n > inscription.MaxSize:
			hi = mid - 1
		case n < inscription.MinSize:
			lo = mid + 1
		default:
			best = mid
			lo = mid + 1
		}
	}
	if best == 0 {
		if !s.settle(gen) {
			return 0, nil, ErrSuperseded
		}
		return 0, nil, ErrNoFit
	}

	f, err := s.apply(ctx, gen, original, best)
	return best, f, err
}

func (s *Session) latest(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// begin tells the sink that request gen is compressing. A superseded
// request stays silent, so the last notification always comes from the
// newest request and ends with compressing=false.
func (s *Session) begin(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.sink.CompressionUpdate(s.current, true)
	return true
}

// settle ends request gen without a new result.
func (s *Session) settle(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.sink.CompressionUpdate(s.current, false)
	return true
}

// deliver publishes f if gen is still the latest request and returns it,
// or returns nil when a newer request has taken over. The sink is notified
// under the session lock so results reach it in request order.
func (s *Session) deliver(gen uint64, f *inscription.File, q int) *inscription.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.current = f
	s.quality = q
	s.sink.CompressionUpdate(f, false)
	return f
}
