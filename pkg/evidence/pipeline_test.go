package evidence

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/lexgraph/lexgraph/pkg/ai/token"
	"github.com/lexgraph/lexgraph/pkg/common"
)

// fakeSource serves chunks from a fixed per-entity table, honoring quotas
// and the document filter the way the store does.
type fakeSource struct {
	chunks map[int64][]common.Chunk
}

func (f *fakeSource) ChunksForEntities(
	_ context.Context,
	_ int64,
	quotas []EntityQuota,
	documentFilter []int64,
) (map[int64][]common.Chunk, error) {
	allowed := make(map[int64]struct{}, len(documentFilter))
	for _, id := range documentFilter {
		allowed[id] = struct{}{}
	}

	out := make(map[int64][]common.Chunk)
	for _, q := range quotas {
		for _, c := range f.chunks[q.EntityID] {
			if len(documentFilter) > 0 {
				if _, ok := allowed[c.DocumentID]; !ok {
					continue
				}
			}
			if len(out[q.EntityID]) >= q.Limit {
				break
			}
			out[q.EntityID] = append(out[q.EntityID], c)
		}
	}
	return out, nil
}

func chunk(id, doc, section int64, text string) common.Chunk {
	return common.Chunk{
		ID:         id,
		PublicID:   fmt.Sprintf("c%d", id),
		DocumentID: doc,
		SectionID:  section,
		Position:   int(id),
		Text:       text,
	}
}

func testPipeline(src ChunkSource, cfg Config) *Pipeline {
	return New(src, token.WordCounter{}, cfg)
}

func TestPruneAtScoreGap_FindsLargestDrop(t *testing.T) {
	entities := []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.9},
		{ID: 3, Score: 0.85},
		{ID: 4, Score: 0.8},
		{ID: 5, Score: 0.75},
		{ID: 6, Score: 0.7},
		{ID: 7, Score: 0.1},
		{ID: 8, Score: 0.09},
	}
	got := pruneAtScoreGap(entities, 6, 0.5)
	if len(got) != 6 {
		t.Fatalf("expected truncation at the 0.7 -> 0.1 gap (6 kept), got %d", len(got))
	}
	if got[len(got)-1].ID != 6 {
		t.Fatalf("expected last kept entity 6, got %d", got[len(got)-1].ID)
	}
}

func TestPruneAtScoreGap_EarlyCliffGuard(t *testing.T) {
	// An artificial cliff below the minimum-keep index (as the community
	// penalty can create) must not prune the list below that index.
	entities := []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.05},
		{ID: 3, Score: 0.04},
		{ID: 4, Score: 0.039},
		{ID: 5, Score: 0.038},
		{ID: 6, Score: 0.037},
		{ID: 7, Score: 0.036},
	}
	got := pruneAtScoreGap(entities, 6, 0.5)
	if len(got) < 6 {
		t.Fatalf("pruned below minimum-keep index: kept %d", len(got))
	}
}

func TestPruneAtScoreGap_NoQualifyingGap(t *testing.T) {
	entities := []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.95},
		{ID: 3, Score: 0.9},
	}
	got := pruneAtScoreGap(entities, 2, 0.5)
	if len(got) != 3 {
		t.Fatalf("expected no pruning without a qualifying gap, got %d", len(got))
	}
}

func TestApplyCommunityPenalty_MajorityTarget(t *testing.T) {
	entities := []common.ScoredEntity{
		{ID: 1, Score: 1.0, CommunityID: 7},
		{ID: 2, Score: 0.9, CommunityID: 7},
		{ID: 3, Score: 0.8, CommunityID: 9},
		{ID: 4, Score: 0.7, CommunityID: 9},
	}
	got, penalized := applyCommunityPenalty(entities, 0.3, 3)
	if penalized != 2 {
		t.Fatalf("expected 2 penalized entities, got %d", penalized)
	}
	for _, e := range got {
		if e.CommunityID == 9 && e.Score > 0.25 {
			t.Fatalf("entity %d outside target community not penalized: score %f", e.ID, e.Score)
		}
		if e.CommunityID == 7 && e.Score < 0.9 {
			t.Fatalf("entity %d in target community wrongly penalized: score %f", e.ID, e.Score)
		}
	}
}

func TestApplyCommunityPenalty_NoMajoritySkips(t *testing.T) {
	entities := []common.ScoredEntity{
		{ID: 1, Score: 1.0, CommunityID: 7},
		{ID: 2, Score: 0.9, CommunityID: 8},
		{ID: 3, Score: 0.8, CommunityID: 9},
	}
	got, penalized := applyCommunityPenalty(entities, 0.3, 3)
	if penalized != 0 {
		t.Fatalf("expected penalty skipped without majority, got %d penalized", penalized)
	}
	if !reflect.DeepEqual(got, entities) {
		t.Fatalf("expected unchanged entities, got %v", got)
	}
}

func TestDedupeExact_KeepsFirstOccurrence(t *testing.T) {
	passages := []Passage{
		{Chunk: chunk(1, 1, 1, "The fee is 10% for long-term leases."), Score: 1.0},
		{Chunk: chunk(2, 2, 2, "the   fee is 10% for LONG-TERM leases."), Score: 0.9},
		{Chunk: chunk(3, 1, 1, "Something else entirely."), Score: 0.8},
	}
	got := dedupeExact(passages)
	if len(got) != 2 {
		t.Fatalf("expected 2 passages after exact dedupe, got %d", len(got))
	}
	if got[0].Chunk.ID != 1 || got[1].Chunk.ID != 3 {
		t.Fatalf("unexpected survivors: %d, %d", got[0].Chunk.ID, got[1].Chunk.ID)
	}
}

func TestDedupeNear_DropsOCRVariant(t *testing.T) {
	passages := []Passage{
		{Chunk: chunk(1, 1, 1, "The agent receives a commission of ten percent for long term leases of the premises"), Score: 1.0},
		{Chunk: chunk(2, 2, 2, "The agent receives a commission of ten percent for long term leases of the premises!"), Score: 0.9},
		{Chunk: chunk(3, 1, 1, "Termination requires ninety days written notice by either party"), Score: 0.8},
	}
	got := dedupeNear(passages, 0.88)
	if len(got) != 2 {
		t.Fatalf("expected near-duplicate dropped, got %d passages", len(got))
	}
	if got[0].Chunk.ID != 1 || got[1].Chunk.ID != 3 {
		t.Fatalf("unexpected survivors: %d, %d", got[0].Chunk.ID, got[1].Chunk.ID)
	}
}

func TestDedupeNear_KeepsDistinctContent(t *testing.T) {
	passages := []Passage{
		{Chunk: chunk(1, 1, 1, "The commission is 25% for short-term leases."), Score: 1.0},
		{Chunk: chunk(2, 1, 1, "The commission is 10% for long-term leases."), Score: 0.9},
	}
	got := dedupeNear(passages, 0.88)
	if len(got) != 2 {
		t.Fatalf("distinct clauses wrongly collapsed: %d passages", len(got))
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: {chunk(1, 1, 1, "alpha beta gamma"), chunk(2, 1, 1, "delta epsilon zeta")},
		2: {chunk(3, 2, 2, "eta theta iota"), chunk(4, 2, 2, "kappa lambda mu")},
		3: {chunk(5, 1, 1, "nu xi omicron")},
	}}
	entities := []common.ScoredEntity{
		{ID: 1, Score: 1.0, CommunityID: 1},
		{ID: 2, Score: 0.8, CommunityID: 1},
		{ID: 3, Score: 0.6, CommunityID: 2},
	}
	p := testPipeline(src, DefaultConfig())

	first, firstStats, err := p.Retrieve(context.Background(), 1, entities, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, secondStats, err := p.Retrieve(context.Background(), 1, entities, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("pipeline output differs between runs:\nfirst:  %v\nsecond: %v", first, second)
	}
	if firstStats != secondStats {
		t.Fatalf("stats differ between runs:\nfirst:  %+v\nsecond: %+v", firstStats, secondStats)
	}
}

func TestRetrieve_NoTotalEvidenceLoss(t *testing.T) {
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: {chunk(1, 1, 1, "only evidence available for this query")},
	}}
	p := testPipeline(src, DefaultConfig())

	got, _, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{{ID: 1, Score: 0.001}}, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) < 1 {
		t.Fatal("pipeline returned zero chunks for a query with a matching entity")
	}
}

func TestRetrieve_BudgetRespected(t *testing.T) {
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: {
			chunk(1, 1, 1, "one two three four five"),
			chunk(2, 1, 2, "six seven eight nine ten"),
		},
	}}
	p := testPipeline(src, DefaultConfig())
	counter := token.WordCounter{}

	// Budget of exactly one chunk returns exactly that chunk.
	got, stats, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{{ID: 1, Score: 1}}, nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 chunk at exact-fit budget, got %d", len(got))
	}
	total := 0
	for _, ps := range got {
		total += counter.Count(ps.Text)
	}
	if total > 5 {
		t.Fatalf("budget exceeded: %d tokens", total)
	}
	if stats.FinalTokens != total {
		t.Fatalf("stats token count %d != actual %d", stats.FinalTokens, total)
	}
}

func TestRetrieve_ZeroBudgetTruncatesNotEmpty(t *testing.T) {
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: {chunk(1, 1, 1, "one two three four five")},
	}}
	p := testPipeline(src, DefaultConfig())

	got, _, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{{ID: 1, Score: 1}}, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single truncated fragment at zero budget, got %d passages", len(got))
	}
	if n := (token.WordCounter{}).Count(got[0].Text); n > 0 {
		t.Fatalf("zero budget still produced %d tokens", n)
	}
}

func TestRetrieve_ScopeFilterRestrictsDocuments(t *testing.T) {
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: {
			chunk(1, 1, 1, "clause from the target document"),
			chunk(2, 2, 2, "noise from an unrelated document"),
			chunk(3, 3, 3, "more noise from another document"),
		},
	}}
	p := testPipeline(src, DefaultConfig())

	scope := &common.Scope{DocumentIDs: []int64{1}, Confidence: 1}
	got, _, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{{ID: 1, Score: 1}}, scope, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, ps := range got {
		if ps.DocumentID != 1 {
			t.Fatalf("chunk from out-of-scope document %d returned", ps.DocumentID)
		}
	}
	if len(got) == 0 {
		t.Fatal("expected in-scope chunk")
	}
}

func TestRetrieve_AllStagesDisabledStillWorks(t *testing.T) {
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: {chunk(1, 1, 1, "alpha beta"), chunk(2, 1, 1, "alpha beta")},
		2: {chunk(3, 2, 2, "gamma delta")},
	}}
	cfg := Config{MaxChunksPerEntity: 5}
	p := testPipeline(src, cfg)

	got, _, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.5},
	}, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Fallback mode: fetch, concatenate, truncate. Duplicates survive.
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks in fallback mode, got %d", len(got))
	}
}

func TestRetrieve_DiversityCaps(t *testing.T) {
	manySameSection := make([]common.Chunk, 0, 10)
	for i := int64(1); i <= 10; i++ {
		manySameSection = append(manySameSection, chunk(i, 1, 1, fmt.Sprintf("chunk number %d with distinct words w%d", i, i)))
	}
	src := &fakeSource{chunks: map[int64][]common.Chunk{1: manySameSection}}

	cfg := DefaultConfig()
	cfg.MaxChunksPerEntity = 10
	cfg.NearDedupeEnabled = false
	p := testPipeline(src, cfg)

	got, _, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{{ID: 1, Score: 1}}, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) > cfg.PerSectionCap {
		t.Fatalf("per-section cap violated: %d chunks from one section", len(got))
	}
}

func TestRetrieve_HubEntityDoesNotCrowdOut(t *testing.T) {
	// A hub entity shared across five documents alongside the true topic
	// entities of document 3, with scope resolved to document 3: the final
	// evidence must come from document 3 only.
	hubChunks := make([]common.Chunk, 0, 5)
	for doc := int64(1); doc <= 5; doc++ {
		hubChunks = append(hubChunks, chunk(100+doc, doc, doc*10, fmt.Sprintf("boilerplate naming the common party in document %d", doc)))
	}
	src := &fakeSource{chunks: map[int64][]common.Chunk{
		1: hubChunks,
		2: {chunk(1, 3, 30, "the fee is 25 percent for short-term leases")},
		3: {chunk(2, 3, 30, "the fee is 10 percent for long-term leases")},
	}}
	p := testPipeline(src, DefaultConfig())

	scope := &common.Scope{DocumentIDs: []int64{3}, Confidence: 0.9}
	got, _, err := p.Retrieve(context.Background(), 1, []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.9},
		{ID: 3, Score: 0.85},
	}, scope, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foundTarget := false
	for _, ps := range got {
		if ps.DocumentID != 3 {
			t.Fatalf("hub entity pulled chunk from out-of-scope document %d", ps.DocumentID)
		}
		if ps.Chunk.ID == 2 {
			foundTarget = true
		}
	}
	if !foundTarget {
		t.Fatal("long-term-lease clause missing from evidence")
	}
}

func TestMergeExtra_DeduplicatesByChunkID(t *testing.T) {
	base := []Passage{{Chunk: chunk(1, 1, 1, "a"), Score: 1}}
	extra := []Passage{
		{Chunk: chunk(1, 1, 1, "a"), Score: 0.5},
		{Chunk: chunk(2, 1, 1, "b"), Score: 0.4},
	}
	got := mergeExtra(base, extra)
	if len(got) != 2 {
		t.Fatalf("expected 2 passages after merge, got %d", len(got))
	}
	if got[0].Score != 1 {
		t.Fatalf("existing passage overwritten by extra: %v", got[0])
	}
}
