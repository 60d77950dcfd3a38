package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/lexgraph/lexgraph/internal/util"
)

// Fingerprint hashes a chunk's normalized text for exact-duplicate
// detection. Ingestion stores this on every chunk; the pipeline recomputes
// it only for chunks that arrived without one.
func Fingerprint(text string) string {
	normalized := strings.ToLower(util.NormalizeWhitespace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// dedupeExact keeps only the first occurrence of each content fingerprint in
// the current ordering. Chunks reachable via multiple entities, or document
// copies of the same underlying content, collapse here.
func dedupeExact(passages []Passage) []Passage {
	if len(passages) == 0 {
		return passages
	}
	seen := make(map[string]struct{}, len(passages))
	out := make([]Passage, 0, len(passages))
	for _, ps := range passages {
		fp := ps.Fingerprint
		if fp == "" {
			fp = Fingerprint(ps.Text)
		}
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, ps)
	}
	return out
}

// dedupeNear greedily drops any passage whose word-set Jaccard similarity to
// an already-kept passage exceeds threshold, scanning in score-descending
// order with chunk id as the stable secondary key. This catches the
// whitespace and OCR-artifact variants exact hashing misses.
func dedupeNear(passages []Passage, threshold float64) []Passage {
	if len(passages) < 2 || threshold <= 0 || threshold >= 1 {
		return passages
	}

	ordered := make([]Passage, len(passages))
	copy(ordered, passages)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Chunk.ID < ordered[j].Chunk.ID
	})

	kept := make([]Passage, 0, len(ordered))
	keptSets := make([]map[string]struct{}, 0, len(ordered))

	for _, ps := range ordered {
		set := wordSet(ps.Text)
		duplicate := false
		for _, ks := range keptSets {
			if jaccard(set, ks) > threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, ps)
		keptSets = append(keptSets, set)
	}
	return kept
}

func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for w := range small {
		if _, ok := large[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
