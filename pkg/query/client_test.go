package query

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/ai/token"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/evidence"
	"github.com/lexgraph/lexgraph/pkg/rank"
)

// structuredRule maps a prompt substring to the canned JSON the fake model
// returns. Rules are matched in order so overlapping prompts stay
// deterministic.
type structuredRule struct {
	contains string
	json     string
}

// fakeAIClient serves canned structured outputs and counts completion calls
// so tests can assert the model is never called without evidence.
type fakeAIClient struct {
	rules           []structuredRule
	completion      string
	completionCalls int
}

func (f *fakeAIClient) GenerateCompletion(_ context.Context, _ string, _ ...ai.GenerateOption) (string, error) {
	f.completionCalls++
	return f.completion, nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(_ context.Context, _, _, prompt string, out any, _ ...ai.GenerateOption) error {
	for _, rule := range f.rules {
		if strings.Contains(prompt, rule.contains) {
			return json.Unmarshal([]byte(rule.json), out)
		}
	}
	return json.Unmarshal([]byte(`{"mentions":[],"semantic_term":"","intent":"local"}`), out)
}

func (f *fakeAIClient) GenerateChat(_ context.Context, _ []ai.ChatMessage, _ ...ai.GenerateOption) (string, error) {
	f.completionCalls++
	return f.completion, nil
}

func (f *fakeAIClient) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeAIClient) GenerateEmbeddings(_ context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAIClient) ResetMetrics() {}

func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

// fakeStore is an in-memory GraphStore slice sufficient for route tests.
type fakeStore struct {
	entities    map[int64]common.Entity
	byName      map[string]int64
	similar     []common.Entity
	graph       *rank.Graph
	docs        map[int64][]int64
	sections    map[int64][]int64
	candidates  []common.Section
	chunks      map[int64][]common.Chunk
	lexical     []common.Chunk
	semantic    []common.Chunk
	documents   map[int64]common.Document
	sectionRows map[int64]common.Section
	communities []common.Community
	firstChunks map[int64]common.Chunk
	documentIDs []int64
}

func (s *fakeStore) ResolveEntitiesByName(_ context.Context, _ int64, names []string) ([]common.Entity, error) {
	out := make([]common.Entity, 0)
	for _, n := range names {
		if id, ok := s.byName[strings.ToLower(n)]; ok {
			out = append(out, s.entities[id])
		}
	}
	return out, nil
}

func (s *fakeStore) SimilarEntities(_ context.Context, _ int64, _ []float32, limit int) ([]common.Entity, error) {
	if limit > len(s.similar) {
		limit = len(s.similar)
	}
	return s.similar[:limit], nil
}

func (s *fakeStore) EntitiesByIDs(_ context.Context, _ int64, ids []int64) ([]common.Entity, error) {
	out := make([]common.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) TopDegreeEntities(_ context.Context, _ int64, _ int) ([]common.Entity, error) {
	return nil, nil
}

func (s *fakeStore) EntitiesSharingDocuments(_ context.Context, _ int64, _ []int64, _ int) ([]common.Entity, error) {
	return nil, nil
}

func (s *fakeStore) LoadRankGraph(_ context.Context, _ int64) (*rank.Graph, error) {
	return s.graph, nil
}

func (s *fakeStore) GraphEntities(_ context.Context, _ int64) ([]common.Entity, error) {
	return nil, nil
}

func (s *fakeStore) EntityRelations(_ context.Context, _ int64) ([]community.Relation, error) {
	return nil, nil
}

func (s *fakeStore) GraphCommunities(_ context.Context, _ int64) ([]common.Community, error) {
	return s.communities, nil
}

func (s *fakeStore) SaveCommunities(_ context.Context, _ int64, _ []common.Community) error {
	return nil
}

func (s *fakeStore) DocumentsForEntities(_ context.Context, _ int64, entityIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	for _, id := range entityIDs {
		if docs, ok := s.docs[id]; ok {
			out[id] = docs
		}
	}
	return out, nil
}

func (s *fakeStore) SectionsForEntities(_ context.Context, _ int64, entityIDs []int64, _ []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	for _, id := range entityIDs {
		if secs, ok := s.sections[id]; ok {
			out[id] = secs
		}
	}
	return out, nil
}

func (s *fakeStore) SectionCandidates(_ context.Context, _ int64, _ []int64) ([]common.Section, error) {
	return s.candidates, nil
}

func (s *fakeStore) ChunksForEntities(_ context.Context, _ int64, quotas []evidence.EntityQuota, documentFilter []int64) (map[int64][]common.Chunk, error) {
	allowed := make(map[int64]struct{}, len(documentFilter))
	for _, id := range documentFilter {
		allowed[id] = struct{}{}
	}
	out := make(map[int64][]common.Chunk)
	for _, q := range quotas {
		for _, c := range s.chunks[q.EntityID] {
			if len(allowed) > 0 {
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

func (s *fakeStore) LexicalSearchChunks(_ context.Context, _ int64, _ string, _ int) ([]common.Chunk, error) {
	return s.lexical, nil
}

func (s *fakeStore) SimilarChunks(_ context.Context, _ int64, _ []float32, _ int) ([]common.Chunk, error) {
	return s.semantic, nil
}

func (s *fakeStore) ListDocumentIDs(_ context.Context, _ int64) ([]int64, error) {
	return s.documentIDs, nil
}

func (s *fakeStore) DocumentsByIDs(_ context.Context, _ int64, ids []int64) ([]common.Document, error) {
	out := make([]common.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) SectionsByIDs(_ context.Context, _ int64, ids []int64) ([]common.Section, error) {
	out := make([]common.Section, 0, len(ids))
	for _, id := range ids {
		if sec, ok := s.sectionRows[id]; ok {
			out = append(out, sec)
		}
	}
	return out, nil
}

func (s *fakeStore) FirstChunkPerDocument(_ context.Context, _ int64, documentIDs []int64) (map[int64]common.Chunk, error) {
	out := make(map[int64]common.Chunk)
	for _, id := range documentIDs {
		if c, ok := s.firstChunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func leaseStore() *fakeStore {
	g := rank.NewGraph()
	g.AddEdge(rank.PathRelation, 1, 2, 1.0)
	g.AddEdge(rank.PathRelation, 2, 1, 1.0)

	return &fakeStore{
		entities: map[int64]common.Entity{
			1: {ID: 1, Name: "Hartwell Lease"},
			2: {ID: 2, Name: "Meridian Brokerage"},
		},
		byName: map[string]int64{
			"hartwell lease":     1,
			"meridian brokerage": 2,
		},
		graph: g,
		docs: map[int64][]int64{
			1: {1},
			2: {1},
		},
		sections: map[int64][]int64{
			1: {1},
			2: {1},
		},
		candidates: []common.Section{
			{ID: 1, DocumentID: 1, Title: "Commission"},
		},
		chunks: map[int64][]common.Chunk{
			1: {{ID: 1, PublicID: "c1", DocumentID: 1, SectionID: 1, Position: 0, Text: "25 percent commission applies to short-term leases", Fingerprint: "f1"}},
			2: {{ID: 2, PublicID: "c2", DocumentID: 1, SectionID: 1, Position: 1, Text: "10 percent commission applies to long-term leases", Fingerprint: "f2"}},
		},
		documents: map[int64]common.Document{
			1: {ID: 1, GraphID: 7, Title: "Hartwell Lease Agreement"},
		},
		sectionRows: map[int64]common.Section{
			1: {ID: 1, DocumentID: 1, Title: "Commission"},
		},
		documentIDs: []int64{1},
	}
}

func newTestClient(s *fakeStore, aiC ai.GraphAIClient, opts ...Option) *Client {
	pipeline := evidence.New(s, token.WordCounter{}, evidence.DefaultConfig())
	matcher := community.NewMatcher(s, aiC, community.DefaultMatchConfig())
	return NewClient(s, aiC, pipeline, matcher, token.WordCounter{}, DefaultClientConfig(), opts...)
}

func TestQueryLocal_CitesEvidence(t *testing.T) {
	store := leaseStore()
	aiC := &fakeAIClient{
		rules: []structuredRule{
			{contains: "What commission applies", json: `{"mentions":["Hartwell Lease","Meridian Brokerage"],"semantic_term":"commission for long-term leases","intent":"local"}`},
		},
		completion: "The commission is 10 percent for long-term leases [[c2]], versus 25 percent short-term [[c1]].",
	}
	client := newTestClient(store, aiC)

	answer, err := client.QueryLocal(context.Background(), Request{
		GraphID:     7,
		Query:       "What commission applies to long-term leases?",
		TokenBudget: 100,
	})
	if err != nil {
		t.Fatalf("QueryLocal failed: %v", err)
	}

	want := []string{"c2", "c1"}
	if !reflect.DeepEqual(answer.CitedChunkIDs, want) {
		t.Fatalf("cited = %v, want %v", answer.CitedChunkIDs, want)
	}
	if answer.Stats.SeedEntities != 2 {
		t.Fatalf("seed entities = %d, want 2", answer.Stats.SeedEntities)
	}
	if answer.Stats.FinalChunks == 0 {
		t.Fatalf("expected final chunks > 0")
	}
}

func TestQueryLocal_Deterministic(t *testing.T) {
	run := func() *Answer {
		store := leaseStore()
		aiC := &fakeAIClient{
			rules: []structuredRule{
				{contains: "What commission applies", json: `{"mentions":["Hartwell Lease"],"semantic_term":"commission for long-term leases","intent":"local"}`},
			},
			completion: "10 percent [[c2]].",
		}
		client := newTestClient(store, aiC)
		answer, err := client.QueryLocal(context.Background(), Request{
			GraphID:     7,
			Query:       "What commission applies to long-term leases?",
			TokenBudget: 100,
		})
		if err != nil {
			t.Fatalf("QueryLocal failed: %v", err)
		}
		return answer
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("answers differ between runs:\n%+v\n%+v", first, second)
	}
}

func TestQueryLocal_NoSeedsSkipsModel(t *testing.T) {
	store := leaseStore()
	store.byName = map[string]int64{}
	aiC := &fakeAIClient{
		rules: []structuredRule{
			{contains: "warranty", json: `{"mentions":["Unknown Party"],"semantic_term":"warranty obligations","intent":"local"}`},
		},
		completion: "should never be used",
	}
	client := newTestClient(store, aiC)

	answer, err := client.QueryLocal(context.Background(), Request{
		GraphID: 7,
		Query:   "What are the warranty obligations?",
	})
	if err != nil {
		t.Fatalf("QueryLocal failed: %v", err)
	}
	if answer.Text != NotFoundAnswer {
		t.Fatalf("answer = %q, want canned not-found response", answer.Text)
	}
	if aiC.completionCalls != 0 {
		t.Fatalf("model called %d times on empty evidence, want 0", aiC.completionCalls)
	}
}

// capturingRanker records the seed set it is handed.
type capturingRanker struct {
	seeds  []int64
	result []common.ScoredEntity
}

func (r *capturingRanker) Rank(_ context.Context, _ int64, seeds []int64, _ []float32) ([]common.ScoredEntity, error) {
	r.seeds = append([]int64(nil), seeds...)
	return r.result, nil
}

func TestQueryMultiHop_UnionsSubQuestionSeeds(t *testing.T) {
	store := leaseStore()
	// The decompose prompt also embeds the original question, so its rule
	// must come first; the remaining rules key on fragments unique to one
	// prompt each.
	aiC := &fakeAIClient{
		rules: []structuredRule{
			{contains: "into independent sub-questions", json: `{"sub_questions":["What late fee does the Hartwell Lease specify?","What late fee does Meridian Brokerage charge?"]}`},
			{contains: "Hartwell Lease specify", json: `{"mentions":["Hartwell Lease"],"semantic_term":"Hartwell late fee","intent":"local"}`},
			{contains: "Meridian Brokerage charge", json: `{"mentions":["Meridian Brokerage"],"semantic_term":"Meridian late fee","intent":"local"}`},
			{contains: "late fee higher", json: `{"mentions":["Hartwell Lease"],"semantic_term":"compare late fees","intent":"multihop"}`},
		},
		completion: "Both specify late fees [[c1]] [[c2]].",
	}

	ranker := &capturingRanker{result: []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.9},
	}}
	client := newTestClient(store, aiC, WithRanker(ranker))

	_, err := client.QueryMultiHop(context.Background(), Request{
		GraphID:     7,
		Query:       "Is the Hartwell Lease late fee higher than the Meridian Brokerage fee?",
		TokenBudget: 100,
	})
	if err != nil {
		t.Fatalf("QueryMultiHop failed: %v", err)
	}

	want := []int64{1, 2}
	if !reflect.DeepEqual(ranker.seeds, want) {
		t.Fatalf("ranker seeds = %v, want %v", ranker.seeds, want)
	}
}

// A zero-valued Config must not stall sub-question discovery: an errgroup
// limit of 0 would block every Go call forever, so the client falls back to
// the default concurrency.
func TestQueryMultiHop_UnsetConcurrencyUsesDefault(t *testing.T) {
	store := leaseStore()
	aiC := &fakeAIClient{
		rules: []structuredRule{
			{contains: "into independent sub-questions", json: `{"sub_questions":["What late fee does the Hartwell Lease specify?","What late fee does Meridian Brokerage charge?"]}`},
			{contains: "Hartwell Lease specify", json: `{"mentions":["Hartwell Lease"],"semantic_term":"Hartwell late fee","intent":"local"}`},
			{contains: "Meridian Brokerage charge", json: `{"mentions":["Meridian Brokerage"],"semantic_term":"Meridian late fee","intent":"local"}`},
			{contains: "late fee higher", json: `{"mentions":["Hartwell Lease"],"semantic_term":"compare late fees","intent":"multihop"}`},
		},
		completion: "Both specify late fees [[c1]] [[c2]].",
	}

	ranker := &capturingRanker{result: []common.ScoredEntity{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.9},
	}}
	pipeline := evidence.New(store, token.WordCounter{}, evidence.DefaultConfig())
	matcher := community.NewMatcher(store, aiC, community.DefaultMatchConfig())
	client := NewClient(store, aiC, pipeline, matcher, token.WordCounter{}, Config{}, WithRanker(ranker))

	done := make(chan error, 1)
	go func() {
		_, err := client.QueryMultiHop(context.Background(), Request{
			GraphID:     7,
			Query:       "Is the Hartwell Lease late fee higher than the Meridian Brokerage fee?",
			TokenBudget: 100,
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("QueryMultiHop failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("QueryMultiHop stalled with unset concurrency limit")
	}

	want := []int64{1, 2}
	if !reflect.DeepEqual(ranker.seeds, want) {
		t.Fatalf("ranker seeds = %v, want %v", ranker.seeds, want)
	}
}

func TestCommunityEntities_ScoresByCommunityPosition(t *testing.T) {
	matched := []common.Community{
		{ID: 10, Members: []int64{1, 2}},
		{ID: 11, Members: []int64{2, 3}},
	}

	scored := communityEntities(matched)

	want := []common.ScoredEntity{
		{ID: 1, Score: 1.0, CommunityID: 10},
		{ID: 2, Score: 1.0, CommunityID: 10},
		{ID: 3, Score: 0.5, CommunityID: 11},
	}
	if !reflect.DeepEqual(scored, want) {
		t.Fatalf("scored = %+v, want %+v", scored, want)
	}
}

func TestIsComprehensive(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{"List all payment obligations across the contracts", true},
		{"What does every invoice from March include?", true},
		{"What commission applies to long-term leases?", false},
	}
	for _, tt := range tests {
		if got := isComprehensive(tt.question); got != tt.want {
			t.Fatalf("isComprehensive(%q) = %v, want %v", tt.question, got, tt.want)
		}
	}
}
