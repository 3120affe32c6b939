package engine

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestMatcher(catalog *mockCatalog, searchFloor, acceptThreshold float64) *Matcher {
	return NewMatcher(catalog, DefaultMatcherConfig(searchFloor, acceptThreshold), testLogger())
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Organic Blueberries 12oz Package", "organic blueberries 12oz package"},
		{"  ROMA  Tomatoes,  #10 Can!  ", "roma tomatoes 10 can"},
		{"Chicken-Breast (Boneless)", "chicken breast boneless"},
		{"", ""},
		{"***", ""},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeUnit(t *testing.T) {
	m := newTestMatcher(newMockCatalog(), 0.80, 0.85)

	cases := []struct {
		in   string
		want string
	}{
		{"lb", "pound"}, {"LBS", "pound"}, {"Pounds", "pound"},
		{"cs", "case"}, {"Cases", "case"},
		{"oz", "ounce"}, {"Ounces", "ounce"},
		{"ea", "each"}, {"pcs", "each"}, {"Piece", "each"},
		{"ea.", "each"},
		{"liter", "liter"}, // unknown units pass through
	}
	for _, tc := range cases {
		if got := m.NormalizeUnit(tc.in); got != tc.want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGuessCategory(t *testing.T) {
	m := newTestMatcher(newMockCatalog(), 0.80, 0.85)

	cases := []struct {
		name string
		want string
	}{
		{"roma tomatoes", "Vegetables"},
		{"chicken breast boneless", "Proteins"},
		{"atlantic salmon fillet", "Seafood"},
		{"heavy cream quart", "Dairy"},
		{"jasmine rice 50", "Grains"},
		{"extra virgin olive oil", "Condiments"},
		{"rare black truffle", "Other"},
	}
	for _, tc := range cases {
		if got := m.GuessCategory(tc.name); got != tc.want {
			t.Errorf("GuessCategory(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestResolve_ExactMatchWinsRegardlessOfUnit(t *testing.T) {
	catalog := newMockCatalog()
	m := newTestMatcher(catalog, 0.80, 0.85)

	first, err := m.Resolve("t1", "Roma Tomatoes", "lb", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := m.Resolve("t1", "roma  TOMATOES!!", "case", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Errorf("identical normalized names resolved to different canonical items: %d vs %d", first, second)
	}
}

func TestResolve_NeverCrossesTenants(t *testing.T) {
	catalog := newMockCatalog()
	m := newTestMatcher(catalog, 0.80, 0.85)

	a, _ := m.Resolve("t1", "Roma Tomatoes", "lb", "")
	b, _ := m.Resolve("t2", "Roma Tomatoes", "lb", "")
	if a == b {
		t.Errorf("tenants t1 and t2 shared canonical item %d", a)
	}
}

// With the reuse threshold set at the search floor, differently worded
// listings of the same product from three vendors all land on one canonical
// item, while an unrelated product stays distinct.
func TestResolve_GroupsSameProductAcrossVendors(t *testing.T) {
	catalog := newMockCatalog()
	m := newTestMatcher(catalog, 0.80, 0.80)

	ids := make(map[uint]bool)
	for _, name := range []string{
		"Organic Blueberries 12oz Package",
		"Blueberries Organic 12oz Pkg",
		"Organic Blueberries 12oz",
	} {
		id, err := m.Resolve("t1", name, "oz", "Produce")
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		ids[id] = true
	}
	if len(ids) != 1 {
		t.Fatalf("expected one canonical item for all blueberry listings, got %d: %v", len(ids), ids)
	}

	truffle, err := m.Resolve("t1", "Rare Black Truffle 1oz", "oz", "Produce")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ids[truffle] {
		t.Errorf("truffle resolved into the blueberry canonical item %d", truffle)
	}
}

// Candidates scoring between the search floor and the stricter reuse
// threshold are found but not reused.
func TestResolve_NearMissCreatesNewItem(t *testing.T) {
	catalog := newMockCatalog()
	m := newTestMatcher(catalog, 0.80, 0.85)

	first, err := m.Resolve("t1", "Organic Blueberries 12oz Package", "oz", "Produce")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Scores 0.825 against the first listing: word overlap 0.75 weighted
	// 0.7, plus unit and category matches.
	second, err := m.Resolve("t1", "Blueberries Organic 12oz Pkg", "oz", "Produce")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first == second {
		t.Errorf("near-miss candidate was reused despite scoring under the reuse threshold")
	}

	// Well above the reuse threshold, so it is reused.
	third, err := m.Resolve("t1", "Organic Blueberries 12oz", "oz", "Produce")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if third != first {
		t.Errorf("high-confidence candidate was not reused: got %d, want %d", third, first)
	}
}

func TestNameSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"organic blueberries 12oz", "organic blueberries 12oz", 1, 1},
		{"organic blueberries 12oz package", "blueberries organic 12oz pkg", 0.74, 0.76},
		{"organic blueberries 12oz package", "organic blueberries 12oz", 0.85, 0.9},
		{"rare black truffle 1oz", "organic blueberries 12oz package", 0, 0.4},
	}
	for _, tc := range cases {
		got := nameSimilarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("nameSimilarity(%q, %q) = %v, want in [%v, %v]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}
