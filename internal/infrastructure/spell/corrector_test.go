package spell

import "testing"

func loadedCorrector() *Corrector {
	c := NewCorrector()
	c.Load(map[string]int{
		"kitap":    120,
		"kitaplik": 15,
		"ozgurluk": 40,
		"istanbul": 90,
	})
	return c
}

func TestCorrectDistanceOne(t *testing.T) {
	c := loadedCorrector()

	cases := []struct{ in, want string }{
		{"kitp", "kitap"},     // deletion in input
		{"kitapp", "kitap"},   // insertion in input
		{"kitab", "kitap"},    // substitution
		{"iktap", "kitap"},    // transposition
		{"KITAP", "kitap"},    // case folded
		{"ozgurluk", "ozgurluk"}, // already known
	}
	for _, tc := range cases {
		if got := c.Correct(tc.in); got != tc.want {
			t.Fatalf("Correct(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCorrectMultiTokenQuery(t *testing.T) {
	c := loadedCorrector()
	if got := c.Correct("kitp istanbl"); got != "kitap istanbul" {
		t.Fatalf("Correct(kitp istanbl) = %q, want %q", got, "kitap istanbul")
	}
	if got := c.Correct("kitap istanbul"); got != "kitap istanbul" {
		t.Fatalf("clean query must pass through, got %q", got)
	}
}

func TestCorrectDistanceTwo(t *testing.T) {
	c := loadedCorrector()
	if got := c.Correct("ktp"); got != "kitap" {
		t.Fatalf("Correct(ktp) = %q, want kitap", got)
	}
}

func TestCorrectNoCandidatePassesThrough(t *testing.T) {
	c := loadedCorrector()
	if got := c.Correct("zzzzzzzz"); got != "zzzzzzzz" {
		t.Fatalf("Correct with no candidate = %q, want input unchanged", got)
	}
}

func TestCorrectEmptyDictionary(t *testing.T) {
	c := NewCorrector()
	if got := c.Correct("kitp"); got != "kitp" {
		t.Fatalf("empty dictionary must pass input through, got %q", got)
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", c.Size())
	}
}

func TestCorrectPrefersHigherFrequency(t *testing.T) {
	c := NewCorrector()
	c.Load(map[string]int{"cat": 100, "car": 5})
	// "cap" is distance 1 from both; frequency decides.
	if got := c.Correct("cap"); got != "cat" {
		t.Fatalf("Correct(cap) = %q, want cat", got)
	}
}

func TestLoadDropsNonPositiveFrequencies(t *testing.T) {
	c := NewCorrector()
	c.Load(map[string]int{"good": 1, "bad": 0, "worse": -3})
	if c.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", c.Size())
	}
}
