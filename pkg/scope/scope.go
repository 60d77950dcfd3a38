// Package scope resolves which documents and sections a query concerns,
// using entity-to-document and entity-to-section membership edges as an
// IDF-weighted voting signal. Its output is a filter, never a hard
// requirement: a nil result means the query is treated as corpus-wide and
// every downstream consumer degrades gracefully.
package scope

import (
	"sort"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

// Config holds the voting thresholds. Every value carries an explicit
// semantic so it can be recalibrated when the upstream score distribution
// changes.
type Config struct {
	// DominanceRatio: the leading document is selected alone when its vote
	// total is at least this multiple of the runner-up.
	DominanceRatio float64

	// PairMargin: when the runner-up is within this relative margin of the
	// leader, both documents are selected (the query plausibly concerns two
	// documents).
	PairMargin float64

	// MinSeedFraction: the leading vote total must strictly exceed this
	// fraction of the seed count. Seeds split evenly across documents fail
	// this guard, which protects comparison queries from being wrongly
	// narrowed to a single document.
	MinSeedFraction float64

	// SectionVoteWeight and SectionEmbedWeight blend section-level votes
	// with query/section embedding similarity. They should sum to 1.
	SectionVoteWeight  float64
	SectionEmbedWeight float64

	// SectionTieMargin: sections within this relative margin of the top
	// section are selected alongside it.
	SectionTieMargin float64
}

// DefaultConfig returns the scoping thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		DominanceRatio:     1.5,
		PairMargin:         0.1,
		MinSeedFraction:    0.5,
		SectionVoteWeight:  0.6,
		SectionEmbedWeight: 0.4,
		SectionTieMargin:   0.1,
	}
}

// docVote pairs a candidate document with its accumulated IDF-weighted votes.
type docVote struct {
	ID    int64
	Votes float64
}

// ResolveDocuments runs document-level voting. memberships maps each seed
// entity to the documents it appears in; an entity appearing in k documents
// contributes 1/k to each, so hub entities carry proportionally less scoping
// signal. Returns nil when the signal is ambiguous.
func ResolveDocuments(seeds []int64, memberships map[int64][]int64, cfg Config) *common.Scope {
	if len(seeds) == 0 {
		return nil
	}

	votes := make(map[int64]float64)
	voters := 0
	for _, e := range seeds {
		docs := dedupe(memberships[e])
		if len(docs) == 0 {
			continue
		}
		voters++
		share := 1.0 / float64(len(docs))
		for _, d := range docs {
			votes[d] += share
		}
	}
	if len(votes) == 0 || voters == 0 {
		return nil
	}

	ranked := make([]docVote, 0, len(votes))
	for id, v := range votes {
		ranked = append(ranked, docVote{ID: id, Votes: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Votes != ranked[j].Votes {
			return ranked[i].Votes > ranked[j].Votes
		}
		return ranked[i].ID < ranked[j].ID
	})

	top := ranked[0]

	// The leader must strictly clear the seed-fraction guard. An even split
	// (comparison queries) lands exactly on the boundary and stays unscoped.
	if top.Votes <= cfg.MinSeedFraction*float64(voters) {
		logger.Debug("[Scope] Leading document below seed-fraction guard",
			"votes", top.Votes, "voters", voters)
		return nil
	}

	confidence := top.Votes / float64(voters)

	if len(ranked) == 1 {
		return &common.Scope{DocumentIDs: []int64{top.ID}, Confidence: confidence}
	}

	second := ranked[1]
	switch {
	case top.Votes >= cfg.DominanceRatio*second.Votes:
		return &common.Scope{DocumentIDs: []int64{top.ID}, Confidence: confidence}
	case second.Votes >= top.Votes*(1-cfg.PairMargin):
		docs := []int64{top.ID, second.ID}
		sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
		return &common.Scope{DocumentIDs: docs, Confidence: confidence}
	default:
		// Leader neither dominates nor pairs cleanly; scoping would be a
		// guess, so retrieval stays corpus-wide.
		logger.Debug("[Scope] Ambiguous document vote distribution",
			"top", top.Votes, "second", second.Votes)
		return nil
	}
}

// SectionCandidate is a section of an already-resolved target document,
// optionally with a precomputed cosine similarity between its embedding and
// the query embedding.
type SectionCandidate struct {
	ID         int64
	DocumentID int64
	ParentID   *int64
	Similarity float64
}

// ResolveSections refines a document scope with section-level voting,
// blended with embedding similarity to catch sections whose topic matches
// the query without direct entity overlap. The selected set includes the top
// section, sections tied closely with it, and the structural parents and
// children of everything selected.
func ResolveSections(
	s *common.Scope,
	seeds []int64,
	sectionMemberships map[int64][]int64,
	candidates []SectionCandidate,
	cfg Config,
) *common.Scope {
	if s == nil || len(candidates) == 0 {
		return s
	}

	inScope := make(map[int64]SectionCandidate, len(candidates))
	for _, c := range candidates {
		inScope[c.ID] = c
	}

	votes := make(map[int64]float64)
	for _, e := range seeds {
		sections := make([]int64, 0)
		for _, sec := range dedupe(sectionMemberships[e]) {
			if _, ok := inScope[sec]; ok {
				sections = append(sections, sec)
			}
		}
		if len(sections) == 0 {
			continue
		}
		share := 1.0 / float64(len(sections))
		for _, sec := range sections {
			votes[sec] += share
		}
	}

	maxVote := 0.0
	for _, v := range votes {
		if v > maxVote {
			maxVote = v
		}
	}

	type sectionScore struct {
		ID    int64
		Score float64
	}
	scored := make([]sectionScore, 0, len(candidates))
	for _, c := range candidates {
		vote := 0.0
		if maxVote > 0 {
			vote = votes[c.ID] / maxVote
		}
		score := cfg.SectionVoteWeight*vote + cfg.SectionEmbedWeight*c.Similarity
		scored = append(scored, sectionScore{ID: c.ID, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) == 0 || scored[0].Score <= 0 {
		return s
	}

	selected := make(map[int64]struct{})
	threshold := scored[0].Score * (1 - cfg.SectionTieMargin)
	for _, sec := range scored {
		if sec.Score >= threshold {
			selected[sec.ID] = struct{}{}
		}
	}

	// Pull in structural parents and children so a selected sub-section is
	// never truncated away from its parent or vice versa.
	for _, c := range candidates {
		if _, ok := selected[c.ID]; ok && c.ParentID != nil {
			if _, parentInScope := inScope[*c.ParentID]; parentInScope {
				selected[*c.ParentID] = struct{}{}
			}
		}
	}
	for _, c := range candidates {
		if c.ParentID == nil {
			continue
		}
		if _, ok := selected[*c.ParentID]; ok {
			selected[c.ID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := *s
	out.SectionIDs = ids
	return &out
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
