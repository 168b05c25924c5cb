package motion

import (
	"image"
	"sync"
	"time"
)

// DefaultNames is the fixed label set handed out round-robin. Kept ASCII
// because the overlay renders with Hershey fonts.
var DefaultNames = []string{
	"Cow", "Sheep", "Chicken", "Bull", "Horse", "Cat", "Dog", "Wild animal",
}

// Default labelling parameters.
const (
	DefaultForgetTimeout = 5 * time.Second
	DefaultCellSize      = 40 // px, quantization step for region signatures
)

// TrackedEntity is a display-only association between a region and a name.
type TrackedEntity struct {
	Key       Signature
	Name      string
	Bounds    image.Rectangle
	FirstSeen time.Time
	LastSeen  time.Time
}

// Signature is an approximate region key: centre and size quantized to a
// grid so that a blob jittering by a few pixels keeps its label.
type Signature struct {
	CX, CY, W, H int
}

// Labeler hands out cosmetic names to regions. It never feeds back into
// detection; callers may skip it entirely.
type Labeler struct {
	names   []string
	cell    int
	forget  time.Duration
	next    int
	mu      sync.Mutex
	tracked map[Signature]*TrackedEntity
}

// NewLabeler creates a labeler. Empty names falls back to DefaultNames.
func NewLabeler(names []string, forget time.Duration) *Labeler {
	if len(names) == 0 {
		names = DefaultNames
	}
	if forget <= 0 {
		forget = DefaultForgetTimeout
	}
	return &Labeler{
		names:   names,
		cell:    DefaultCellSize,
		forget:  forget,
		tracked: make(map[Signature]*TrackedEntity),
	}
}

// SignatureOf quantizes a region into a signature.
func (l *Labeler) SignatureOf(r Region) Signature {
	c := r.Center()
	return Signature{
		CX: c.X / l.cell,
		CY: c.Y / l.cell,
		W:  r.Width / l.cell,
		H:  r.Height / l.cell,
	}
}

// Label returns one name per region, matching existing entities by
// signature or by nearest centre within one cell, and evicts entities
// unseen for longer than the forget timeout.
func (l *Labeler) Label(regions []Region, now time.Time) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	labels := make([]string, len(regions))
	matched := make(map[Signature]bool, len(regions))

	for i, r := range regions {
		key := l.SignatureOf(r)
		if matched[key] {
			// Two blobs in one cell this frame share the name.
			labels[i] = l.tracked[key].Name
			continue
		}
		e, ok := l.tracked[key]
		if !ok {
			e = l.nearest(r, matched)
		}
		if e == nil {
			e = &TrackedEntity{
				Key:       key,
				Name:      l.names[l.next%len(l.names)],
				FirstSeen: now,
			}
			l.next++
		} else if e.Key != key {
			delete(l.tracked, e.Key)
			e.Key = key
		}
		e.Bounds = r.Bounds()
		e.LastSeen = now
		l.tracked[key] = e
		matched[key] = true
		labels[i] = e.Name
	}

	for key, e := range l.tracked {
		if now.Sub(e.LastSeen) > l.forget {
			delete(l.tracked, key)
		}
	}
	return labels
}

// nearest finds an unmatched entity whose centre lies within one cell.
func (l *Labeler) nearest(r Region, matched map[Signature]bool) *TrackedEntity {
	c := r.Center()
	limit := l.cell * l.cell
	var best *TrackedEntity
	bestDist := limit + 1
	for key, e := range l.tracked {
		if matched[key] {
			continue
		}
		ec := e.Bounds.Min.Add(e.Bounds.Size().Div(2))
		dx, dy := c.X-ec.X, c.Y-ec.Y
		if d := dx*dx + dy*dy; d <= limit && d < bestDist {
			best, bestDist = e, d
		}
	}
	return best
}

// Entities returns a snapshot of tracked entities.
func (l *Labeler) Entities() []TrackedEntity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TrackedEntity, 0, len(l.tracked))
	for _, e := range l.tracked {
		out = append(out, *e)
	}
	return out
}
