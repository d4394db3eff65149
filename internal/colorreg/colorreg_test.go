package colorreg

import (
	"fmt"
	"sync"
	"testing"
)

func TestAssignColorIsStableAndBijective(t *testing.T) {
	r := New()
	c1, err := r.AssignColor("opi-a")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := r.AssignColor("opi-a")
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Fatalf("AssignColor not stable: %v != %v", c1, c2)
	}
	if c1 == Black {
		t.Fatal("AssignColor must never return the black sentinel")
	}
	name, ok := r.LookupByColor(c1)
	if !ok || name != "opi-a" {
		t.Fatalf("LookupByColor(%v) = (%q, %v), want (opi-a, true)", c1, name, ok)
	}
}

// E2: every sampled component stays within [0, 254] — 255 is never
// produced, mirroring the Python original's randrange(255) exclusivity.
func TestAssignColorComponentsStayBelow255(t *testing.T) {
	r := New()
	for i := 0; i < 2000; i++ {
		c, err := r.AssignColor(fmt.Sprintf("opi-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if c.R == 255 || c.G == 255 || c.B == 255 {
			t.Fatalf("AssignColor(%d) = %v has a component == 255", i, c)
		}
	}
}

func TestLookupByColorBlackNeverResolves(t *testing.T) {
	r := New()
	if _, ok := r.LookupByColor(Black); ok {
		t.Fatal("Black must never resolve to a name")
	}
}

// P3: concurrent AssignColor calls for distinct names never produce
// colliding colors.
func TestAssignColorConcurrentNoCollisions(t *testing.T) {
	r := New()
	const n = 500
	var wg sync.WaitGroup
	colors := make([]Color, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			colors[i], errs[i] = r.AssignColor(fmt.Sprintf("opi-%d", i))
		}(i)
	}
	wg.Wait()

	seen := make(map[Color]int)
	for i, c := range colors {
		if errs[i] != nil {
			t.Fatalf("AssignColor(%d) error: %v", i, errs[i])
		}
		if c == Black {
			t.Fatalf("AssignColor(%d) returned black sentinel", i)
		}
		if prev, dup := seen[c]; dup {
			t.Fatalf("color collision: index %d and %d both got %v", prev, i, c)
		}
		seen[c] = i
	}
	if r.Len() != n {
		t.Fatalf("Registry.Len() = %d, want %d", r.Len(), n)
	}
}

// S6: the registry must sustain a realistically large OPI count without
// exhausting the color space or producing collisions.
func TestAssignColorStress10000(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in -short mode")
	}
	r := New()
	const n = 10000
	for i := 0; i < n; i++ {
		if _, err := r.AssignColor(fmt.Sprintf("opi-%06d", i)); err != nil {
			t.Fatalf("AssignColor(%d) error: %v", i, err)
		}
	}
	if r.Len() != n {
		t.Fatalf("Registry.Len() = %d, want %d", r.Len(), n)
	}
}

func TestToColorDictRoundTrip(t *testing.T) {
	r := New()
	c, err := r.AssignColor("opi-a")
	if err != nil {
		t.Fatal(err)
	}
	dict := r.ToColorDict()
	rs, gs, bs := fmt.Sprint(c.R), fmt.Sprint(c.G), fmt.Sprint(c.B)
	if dict[rs][gs][bs] != "opi-a" {
		t.Fatalf("ToColorDict()[%s][%s][%s] = %q, want opi-a", rs, gs, bs, dict[rs][gs][bs])
	}
}

func TestLoadColorDictRebuildsBijection(t *testing.T) {
	names := map[string]Color{
		"opi-a": {10, 20, 30},
		"opi-b": {40, 50, 60},
	}
	r := LoadColorDict(names)
	if c, ok := r.LookupByName("opi-a"); !ok || c != (Color{10, 20, 30}) {
		t.Fatalf("LookupByName(opi-a) = (%v, %v)", c, ok)
	}
	if name, ok := r.LookupByColor(Color{40, 50, 60}); !ok || name != "opi-b" {
		t.Fatalf("LookupByColor({40,50,60}) = (%q, %v)", name, ok)
	}
}
