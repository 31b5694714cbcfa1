package approval

import (
	"testing"
	"time"
)

func TestCompositeKeyDeterministic(t *testing.T) {
	start := Date(2024, 6, 1)
	end := Date(2024, 6, 7)

	a := CompositeKey("proj-1", start, end, "user-1")
	b := CompositeKey("proj-1", start, end, "user-1")
	if a != b {
		t.Fatalf("CompositeKey not deterministic: %q != %q", a, b)
	}
	if want := "proj-1\x1f2024-06-01\x1f2024-06-07\x1fuser-1"; a != want {
		t.Errorf("CompositeKey = %q, want %q", a, want)
	}
}

func TestCompositeKeyIgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	a := CompositeKey("p", time.Date(2024, 6, 1, 23, 30, 0, 0, loc), Date(2024, 6, 7), "u")
	b := CompositeKey("p", Date(2024, 6, 1), Date(2024, 6, 7), "u")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}

func TestCompositeKeyDistinctTuples(t *testing.T) {
	start := Date(2024, 6, 1)
	end := Date(2024, 6, 7)
	keys := map[string]string{
		"base":       CompositeKey("p1", start, end, "u1"),
		"project":    CompositeKey("p2", start, end, "u1"),
		"user":       CompositeKey("p1", start, end, "u2"),
		"start":      CompositeKey("p1", Date(2024, 6, 2), end, "u1"),
		"end":        CompositeKey("p1", start, Date(2024, 6, 8), "u1"),
		"boundary-a": CompositeKey("p1-2024", start, end, "u1"),
		"boundary-b": CompositeKey("p1", start, end, "2024-u1"),
	}
	seen := map[string]string{}
	for name, k := range keys {
		if other, ok := seen[k]; ok {
			t.Errorf("%s collides with %s: %q", name, other, k)
		}
		seen[k] = name
	}
}

func TestSplitKeyRoundTrip(t *testing.T) {
	p := NewPeriod(Date(2024, 6, 1), Date(2024, 6, 7))
	key := KeyFor("proj", p, "user")

	projectID, got, userID, ok := SplitKey(key)
	if !ok {
		t.Fatal("SplitKey: ok = false")
	}
	if projectID != "proj" || userID != "user" || !got.Start.Equal(p.Start) || !got.End.Equal(p.End) {
		t.Errorf("SplitKey = %q %v %q", projectID, got, userID)
	}

	if _, _, _, ok := SplitKey("not-a-key"); ok {
		t.Error("SplitKey accepted a malformed key")
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("user_id", "u-1"); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
	if err := ValidateIdentifier("user_id", ""); err == nil {
		t.Error("empty id accepted")
	}
	if err := ValidateIdentifier("user_id", "a"+KeyDelimiter+"b"); err == nil {
		t.Error("id containing the delimiter accepted")
	}
}

func TestPeriodContains(t *testing.T) {
	p := NewPeriod(Date(2024, 6, 1), Date(2024, 6, 7))
	cases := []struct {
		date time.Time
		want bool
	}{
		{Date(2024, 5, 31), false},
		{Date(2024, 6, 1), true},
		{Date(2024, 6, 3), true},
		{time.Date(2024, 6, 7, 18, 0, 0, 0, time.UTC), true},
		{Date(2024, 6, 8), false},
	}
	for _, c := range cases {
		if got := p.Contains(c.date); got != c.want {
			t.Errorf("Contains(%s) = %v, want %v", c.date.Format(time.RFC3339), got, c.want)
		}
	}
}

func TestParsePeriodRejectsInverted(t *testing.T) {
	if _, err := ParsePeriod("2024-06-07", "2024-06-01"); err == nil {
		t.Error("inverted period accepted")
	}
	if _, err := ParsePeriod("2024-06-01", "June 7"); err == nil {
		t.Error("malformed end date accepted")
	}
}
