package resolve

import (
	"testing"
	"time"
)

var base = time.Date(2025, 1, 17, 15, 0, 0, 0, time.UTC) // Friday

func listing() []Candidate {
	return []Candidate{
		{ID: 1, Text: "Dentist appointment", When: base.Add(-53 * time.Hour)}, // Wednesday 10am
		{ID: 2, Text: "Dinner with Dan", When: base.Add(4 * time.Hour)},
		{ID: 3, Text: "Team standup", When: base},
	}
}

func TestResolveIndex(t *testing.T) {
	r := New(0, 0)
	res := r.Resolve(Reference{Index: 2}, listing())
	if res.Kind != Match || res.Best.ID != 2 || res.Best.Index != 2 {
		t.Errorf("index 2 = %+v", res)
	}
	if res := r.Resolve(Reference{Index: 4}, listing()); res.Kind != None {
		t.Errorf("out of range index = %s", res.Kind)
	}
	if res := r.Resolve(Reference{Index: 1}, nil); res.Kind != None {
		t.Errorf("empty listing = %s", res.Kind)
	}
}

func TestResolveText(t *testing.T) {
	r := New(0.5, 0.1)
	tests := []struct {
		ref    string
		kind   Kind
		wantID int64
	}{
		{"the dentist one", Match, 1},
		{"dentst", Match, 1}, // typo
		{"dinner", Match, 2},
		{"standup", Match, 3},
		{"the 3pm one", Match, 3},
		{"friday standup", Match, 3},
		{"gym", None, 0},
		{"the one", None, 0},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			res := r.Resolve(Reference{Text: tt.ref}, listing())
			if res.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s (%+v)", res.Kind, tt.kind, res)
			}
			if tt.kind == Match && res.Best.ID != tt.wantID {
				t.Errorf("matched %d, want %d", res.Best.ID, tt.wantID)
			}
		})
	}
}

func TestResolveAmbiguous(t *testing.T) {
	r := New(0.5, 0.1)
	cands := []Candidate{
		{ID: 1, Text: "Dentist checkup", When: base},
		{ID: 2, Text: "Dentist cleaning", When: base.Add(24 * time.Hour)},
		{ID: 3, Text: "Groceries", When: base},
	}
	res := r.Resolve(Reference{Text: "dentist"}, cands)
	if res.Kind != Ambiguous {
		t.Fatalf("kind = %s, want ambiguous", res.Kind)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("contenders = %+v", res.Candidates)
	}
	for _, c := range res.Candidates {
		if c.ID == 3 {
			t.Error("unrelated candidate listed as contender")
		}
	}

	// a more specific reference disambiguates
	res = r.Resolve(Reference{Text: "dentist cleaning"}, cands)
	if res.Kind != Match || res.Best.ID != 2 {
		t.Errorf("specific ref = %+v", res)
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := New(0, 0)
	a := r.Resolve(Reference{Text: "dinner dan"}, listing())
	b := r.Resolve(Reference{Text: "dinner dan"}, listing())
	if a.Kind != b.Kind || a.Best.ID != b.Best.ID || a.Best.Score != b.Best.Score {
		t.Errorf("not deterministic: %+v vs %+v", a, b)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Delete the Dentist's 3:30pm reminder!")
	want := []string{"delete", "dentist", "3:30pm"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSimilarity(t *testing.T) {
	r := New(0, 0)
	if s := r.similarity("dentist", "dentist"); s != 1 {
		t.Errorf("identical = %v", s)
	}
	if s := r.similarity("dentst", "dentist"); s < tokenSimilarity {
		t.Errorf("one-edit typo = %v", s)
	}
	if s := r.similarity("3pm", "4pm"); s >= tokenSimilarity {
		t.Errorf("different hours too similar: %v", s)
	}
}
