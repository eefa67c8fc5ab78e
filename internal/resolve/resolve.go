// Package resolve finds which stored record a free-text or index reference
// points at ("delete the dentist one", "/deletereminder 2").
package resolve

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Kind tags a resolution result
type Kind int

const (
	None Kind = iota
	Match
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Match:
		return "match"
	case Ambiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Candidate is one entry of a listing the user could be referring to
type Candidate struct {
	ID   int64
	Text string
	When time.Time
}

// Scored is a candidate with its similarity to the reference
type Scored struct {
	Candidate
	Index int // 1-based position in the listing
	Score float64
}

// Reference is what the user typed: an index into the last listing, or text
type Reference struct {
	Index int
	Text  string
}

// Result is the tagged outcome of Resolve
type Result struct {
	Kind       Kind
	Best       Scored   // set when Kind == Match
	Candidates []Scored // contenders when Kind == Ambiguous
}

// Resolver scores references against listings
type Resolver struct {
	Threshold float64
	Margin    float64
	dmp       *diffmatchpatch.DiffMatchPatch
}

const (
	coverageWeight = 0.8
	jaccardWeight  = 0.2
	// tokenSimilarity is the normalised edit-distance similarity at which two
	// tokens count as the same word ("dentst" ~ "dentist")
	tokenSimilarity = 0.8
)

// stopwords carry no identifying content in a reference
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "one": true, "ones": true,
	"about": true, "for": true, "to": true, "at": true, "on": true, "in": true,
	"with": true, "that": true, "this": true, "please": true, "of": true, "and": true,
	"event": true, "events": true, "reminder": true, "reminders": true, "thing": true,
	"called": true, "named": true, "is": true, "it": true, "me": true, "s": true,
}

// New creates a resolver; zero values fall back to threshold 0.5, margin 0.1
func New(threshold, margin float64) *Resolver {
	if threshold <= 0 {
		threshold = 0.5
	}
	if margin <= 0 {
		margin = 0.1
	}
	return &Resolver{Threshold: threshold, Margin: margin, dmp: diffmatchpatch.New()}
}

// Resolve picks the listing entry ref points at. Index references are 1-based;
// an out-of-range index is None. Text references score every candidate and
// return Match only when the best score clears the threshold and no other
// candidate is within the margin of it.
func (r *Resolver) Resolve(ref Reference, listing []Candidate) Result {
	if ref.Index > 0 {
		if ref.Index > len(listing) {
			return Result{Kind: None}
		}
		return Result{Kind: Match, Best: Scored{Candidate: listing[ref.Index-1], Index: ref.Index, Score: 1}}
	}

	refTokens := Tokens(ref.Text)
	if len(refTokens) == 0 || len(listing) == 0 {
		return Result{Kind: None}
	}

	scored := make([]Scored, 0, len(listing))
	for i, c := range listing {
		scored = append(scored, Scored{Candidate: c, Index: i + 1, Score: r.Score(refTokens, c)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	top := scored[0]
	if top.Score < r.Threshold {
		return Result{Kind: None}
	}
	var contenders []Scored
	for _, s := range scored {
		if s.Score > 0 && top.Score-s.Score < r.Margin {
			contenders = append(contenders, s)
		}
	}
	if len(contenders) > 1 {
		return Result{Kind: Ambiguous, Candidates: contenders}
	}
	return Result{Kind: Match, Best: top}
}

// Score blends fuzzy coverage of the reference tokens with Jaccard overlap
func (r *Resolver) Score(refTokens []string, c Candidate) float64 {
	titleTokens := Tokens(c.Text)
	all := append(append([]string{}, titleTokens...), timeTokens(c.When)...)
	if len(all) == 0 {
		return 0
	}

	covered := 0.0
	for _, rt := range refTokens {
		best := 0.0
		for _, ct := range all {
			if sim := r.similarity(rt, ct); sim > best {
				best = sim
			}
		}
		if best >= tokenSimilarity {
			covered += best
		}
	}
	coverage := covered / float64(len(refTokens))
	return coverageWeight*coverage + jaccardWeight*jaccard(refTokens, titleTokens)
}

// similarity is 1 - levenshtein/maxlen
func (r *Resolver) similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 0
	}
	dist := r.dmp.DiffLevenshtein(r.dmp.DiffMain(a, b, false))
	return 1 - float64(dist)/float64(maxLen)
}

func jaccard(a, b []string) float64 {
	sa := make(map[string]bool, len(a))
	for _, t := range a {
		sa[t] = true
	}
	union := make(map[string]bool, len(a)+len(b))
	inter := 0
	for t := range sa {
		union[t] = true
	}
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if sa[t] {
			inter++
		}
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

// Tokens lowercases s, splits on anything but letters, digits and ':' and
// drops stopwords
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ':'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ":")
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// timeTokens lets "the 3pm one" or "friday's" match by when a record is
func timeTokens(t time.Time) []string {
	if t.IsZero() {
		return nil
	}
	h12 := t.Hour() % 12
	if h12 == 0 {
		h12 = 12
	}
	suffix := "am"
	if t.Hour() >= 12 {
		suffix = "pm"
	}
	toks := []string{
		strings.ToLower(t.Weekday().String()),
		strings.ToLower(t.Month().String()),
		fmt.Sprintf("%d:%02d%s", h12, t.Minute(), suffix),
		fmt.Sprintf("%d:%02d", t.Hour(), t.Minute()),
	}
	if t.Minute() == 0 {
		toks = append(toks, fmt.Sprintf("%d%s", h12, suffix))
	}
	return toks
}
