// Package override is the manual override surface: the seam through which
// device simulators and a human operator write into the I/O table.
//
// Every write goes through the target's setters, so kind constraints are
// enforced in one place. The panel also tracks which points an operator
// has forced, for the forcing banner.
package override

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/plcsim/internal/iotable"
)

// Target is what a Panel writes to. *engine.Engine satisfies it.
type Target interface {
	Get(tag string) (iotable.Point, error)
	SetValue(tag string, value any) error
	SetFault(tag string, fault bool) error
}

// ErrNotDigitalInput is returned by ToggleInput for any other kind.
var ErrNotDigitalInput = errors.New("not a digital input")

// Forced is one forced point.
type Forced struct {
	Tag   string
	Value any
}

// Panel applies operator overrides to a Target.
//
// Thread-safety: All methods are safe for concurrent use.
type Panel struct {
	target Target
	logger *slog.Logger

	mu     sync.Mutex
	forced map[string]any
}

// Option configures a Panel.
type Option func(*Panel)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Panel) { p.logger = l }
}

// NewPanel creates a panel writing to target.
func NewPanel(target Target, opts ...Option) *Panel {
	p := &Panel{
		target: target,
		logger: slog.Default(),
		forced: make(map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Force writes value to tag and marks the point forced. The value must fit
// the point kind (bool for digital, numeric for analog).
func (p *Panel) Force(tag string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forceLocked(tag, value)
}

func (p *Panel) forceLocked(tag string, value any) error {
	if err := p.target.SetValue(tag, value); err != nil {
		return fmt.Errorf("force %s: %w", tag, err)
	}
	p.forced[tag] = value
	p.logger.Info("point forced", "tag", tag, "value", value, "forced", len(p.forced))
	return nil
}

// ToggleInput flips a digital input, as a pushbutton or switch would.
func (p *Panel) ToggleInput(tag string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pt, err := p.target.Get(tag)
	if err != nil {
		return false, fmt.Errorf("toggle %s: %w", tag, err)
	}
	if pt.Kind != iotable.DigitalInput {
		return false, fmt.Errorf("toggle %s (%s): %w", tag, pt.Kind, ErrNotDigitalInput)
	}
	next := !pt.Digital
	if err := p.forceLocked(tag, next); err != nil {
		return false, err
	}
	return next, nil
}

// SetAnalog forces an analog point to v.
func (p *Panel) SetAnalog(tag string, v float64) error {
	return p.Force(tag, v)
}

// SetFault sets a fault flag. Fault flags are diagnostic and do not count
// as forcing.
func (p *Panel) SetFault(tag string, fault bool) error {
	if err := p.target.SetFault(tag, fault); err != nil {
		return fmt.Errorf("override fault %s: %w", tag, err)
	}
	return nil
}

// Forced returns the forced points sorted by tag.
func (p *Panel) Forced() []Forced {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Forced, 0, len(p.forced))
	for tag, v := range p.forced {
		out = append(out, Forced{Tag: tag, Value: v})
	}
	slices.SortFunc(out, func(a, b Forced) int {
		switch {
		case a.Tag < b.Tag:
			return -1
		case a.Tag > b.Tag:
			return 1
		}
		return 0
	})
	return out
}

// ForcedCount returns the number of forced points.
func (p *Panel) ForcedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.forced)
}

// IsForced reports whether tag is forced.
func (p *Panel) IsForced(tag string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.forced[tag]
	return ok
}

// Release clears the forced mark on tag. The value stays where it was;
// there is no field device behind the table to fall back to.
func (p *Panel) Release(tag string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.forced[tag]; !ok {
		return false
	}
	delete(p.forced, tag)
	p.logger.Info("point released", "tag", tag, "forced", len(p.forced))
	return true
}

// ReleaseAll clears every forced mark and returns how many were cleared.
func (p *Panel) ReleaseAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.forced)
	clear(p.forced)
	if n > 0 {
		p.logger.Info("all points released", "released", n)
	}
	return n
}

// Banner returns the operator warning shown while any point is forced, or
// "" when nothing is.
func (p *Panel) Banner() string {
	n := p.ForcedCount()
	switch n {
	case 0:
		return ""
	case 1:
		return "FORCING ACTIVE - 1 point currently forced"
	default:
		return fmt.Sprintf("FORCING ACTIVE - %d points currently forced", n)
	}
}
