// Package colorreg implements the bijective OPI-name <-> RGB-color
// registry used to key pixels in the graph raster back to the OPI that
// produced them. Colors are assigned by rejection sampling over the
// 0-254 cube (255 is excluded per component, policy E2), excluding pure
// black which is reserved as the "no data" sentinel.
package colorreg

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// Color is an RGB triple in [0, 255].
type Color struct {
	R, G, B uint8
}

// Black is the reserved sentinel meaning "no OPI owns this pixel".
var Black = Color{0, 0, 0}

// Registry is a concurrency-safe bijective map between OPI names and
// colors. The zero value is not usable; construct with New.
type Registry struct {
	mu       sync.Mutex
	byName   map[string]Color
	byColor  map[Color]string
	rng      *randSource
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byName:  make(map[string]Color),
		byColor: make(map[Color]string),
		rng:     newRandSource(),
	}
}

// AssignColor returns the color for name, allocating one by rejection
// sampling if name is not already registered. Safe for concurrent use;
// the whole check-then-allocate sequence is atomic under the registry's
// mutex so two goroutines racing to register distinct names can never
// collide on the same color (P3).
func (r *Registry) AssignColor(name string) (Color, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byName[name]; ok {
		return c, nil
	}

	const maxAttempts = 1 << 20
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c := r.randomColor()
		if c == Black {
			continue
		}
		if _, taken := r.byColor[c]; taken {
			continue
		}
		r.byName[name] = c
		r.byColor[c] = name
		return c, nil
	}
	return Color{}, orthoerr.New(orthoerr.Geometry, "color space exhausted after %d attempts for OPI %q", maxAttempts, name)
}

// LookupByName returns the color already assigned to name, if any.
func (r *Registry) LookupByName(name string) (Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	return c, ok
}

// LookupByColor returns the OPI name owning color, if any. Black never
// resolves to a name.
func (r *Registry) LookupByColor(c Color) (string, bool) {
	if c == Black {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byColor[c]
	return name, ok
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// Names returns all registered OPI names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

func (r *Registry) randomColor() Color {
	return Color{r.rng.byte(), r.rng.byte(), r.rng.byte()}
}

// ColorDict is the 3-level nested string-keyed persistence shape used by
// cache_mtd.json: byColor[R][G][B] = name. Field order mirrors the
// teacher's original persisted format for compatibility with existing
// caches built by the Python predecessor.
type ColorDict map[string]map[string]map[string]string

// ToColorDict renders the registry's color->name side in the persisted
// nested-map shape.
func (r *Registry) ToColorDict() ColorDict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(ColorDict, len(r.byColor))
	for c, name := range r.byColor {
		rs, gs, bs := fmt.Sprint(c.R), fmt.Sprint(c.G), fmt.Sprint(c.B)
		if out[rs] == nil {
			out[rs] = make(map[string]map[string]string)
		}
		if out[rs][gs] == nil {
			out[rs][gs] = make(map[string]string)
		}
		out[rs][gs][bs] = name
	}
	return out
}

// LoadColorDict rebuilds a registry from the flat name->color map stored
// under list_OPI in overviews.json alone; it takes no ColorDict. Both
// indexes are populated from that one map, so they cannot disagree.
func LoadColorDict(names map[string]Color) *Registry {
	r := New()
	for name, c := range names {
		r.byName[name] = c
		r.byColor[c] = name
	}
	return r
}

// randSource is a tiny crypto/rand-backed byte source. The teacher's
// Python predecessor uses Python's random.randrange, which is not
// cryptographically relevant here either; crypto/rand is used simply
// because it needs no seeding and the stdlib math/rand/v2 package name
// would otherwise require threading a *rand.Rand through every call
// site for determinism we don't actually need.
const randBufSize = 4096

type randSource struct {
	mu  sync.Mutex
	buf [randBufSize]byte
	pos int
}

func newRandSource() *randSource {
	return &randSource{pos: randBufSize}
}

func (s *randSource) byte() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.buf) {
		if _, err := rand.Read(s.buf[:]); err != nil {
			// crypto/rand.Read on a fixed-size buffer only fails if the
			// OS entropy source is unavailable; fall back to a
			// deterministic but varying value rather than panicking.
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(s.pos))
			copy(s.buf[:], b[:])
		}
		s.pos = 0
	}
	b := s.buf[s.pos]
	s.pos++
	// Reduce into [0, 254]: spec policy E2 samples each component
	// exclusive of 255, mirroring the Python original's randrange(255).
	return b % 255
}
