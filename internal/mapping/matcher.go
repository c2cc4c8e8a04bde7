package mapping

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/csvmapper/internal/schema"
)

// DefaultSimilarityThreshold is the lowest score accepted as a fuzzy match.
const DefaultSimilarityThreshold = 0.8

// containsScore is awarded when one name contains the other, as in
// "Email Address" against "email".
const containsScore = 0.85

// Mapper proposes an initial mapping from a header row.
type Mapper struct {
	// Threshold overrides DefaultSimilarityThreshold when positive.
	Threshold float64
}

type candidate struct {
	col   int
	src   int
	score float64
}

// Initial maps each column to the best-matching header cell. Exact matches
// on key or label after normalization win, then the highest similarity at
// or above the threshold. Every header cell is used at most once; ties go
// to the earlier column and then the earlier header cell. Columns without
// a match are Unmapped.
func (mp Mapper) Initial(header []string, cols []schema.Column) Mapping {
	threshold := mp.Threshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	norms := make([]string, len(header))
	for i, h := range header {
		norms[i] = Normalize(h)
	}

	var cands []candidate
	for ci, c := range cols {
		key, label := Normalize(c.Key), Normalize(c.Label)
		for si, h := range norms {
			if h == "" {
				continue
			}
			if s := max(nameScore(h, key), nameScore(h, label)); s >= threshold {
				cands = append(cands, candidate{col: ci, src: si, score: s})
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].col != cands[j].col {
			return cands[i].col < cands[j].col
		}
		return cands[i].src < cands[j].src
	})

	m := make(Mapping, len(cols))
	for _, c := range cols {
		m[c.Key] = Unmapped
	}
	colUsed := make([]bool, len(cols))
	srcUsed := make([]bool, len(header))
	for _, cd := range cands {
		if colUsed[cd.col] || srcUsed[cd.src] {
			continue
		}
		colUsed[cd.col] = true
		srcUsed[cd.src] = true
		m[cols[cd.col].Key] = cd.src
	}
	return m
}

func nameScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	s := Similarity(a, b)
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len([]rune(short)) >= 4 && strings.Contains(long, short) && s < containsScore {
		s = containsScore
	}
	return s
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize reduces a header or column name to lowercase letters and digits
// with accents removed, so "First Name", "first_name" and "firstName" all
// compare equal.
func Normalize(s string) string {
	folded, _, err := transform.String(foldAccents, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity is 1 minus the Levenshtein distance over the longer length.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
