package community

import (
	"context"
	"math"
	"testing"

	"github.com/lexgraph/lexgraph/pkg/common"
)

type fakeMatchSource struct {
	communities []common.Community
	similar     []common.Entity
	shared      []common.Entity
	hubs        []common.Entity
}

func (f *fakeMatchSource) GraphCommunities(_ context.Context, _ int64) ([]common.Community, error) {
	return f.communities, nil
}

func (f *fakeMatchSource) SimilarEntities(_ context.Context, _ int64, _ []float32, _ int) ([]common.Entity, error) {
	return f.similar, nil
}

func (f *fakeMatchSource) EntitiesSharingDocuments(_ context.Context, _ int64, _ []int64, _ int) ([]common.Entity, error) {
	return f.shared, nil
}

func (f *fakeMatchSource) TopDegreeEntities(_ context.Context, _ int64, _ int) ([]common.Entity, error) {
	return f.hubs, nil
}

func TestMatch_RanksByCosine(t *testing.T) {
	source := &fakeMatchSource{
		communities: []common.Community{
			{ID: 1, Summary: "leases", Embedding: []float32{0, 1, 0}},
			{ID: 2, Summary: "invoices", Embedding: []float32{1, 0, 0}},
			{ID: 3, Summary: "warranties", Embedding: []float32{0.7, 0.7, 0}},
		},
	}
	// The fake client embeds every query as [1,0,0].
	m := NewMatcher(source, &fakeAIClient{embedding: []float32{1, 0, 0}}, DefaultMatchConfig())

	got, err := m.Match(context.Background(), 7, "unpaid invoices", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 communities, got %d", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected order: %d, %d", got[0].ID, got[1].ID)
	}
}

func TestMatch_SkipsDegradedCommunities(t *testing.T) {
	source := &fakeMatchSource{
		communities: []common.Community{
			{ID: 1, Summary: "", Embedding: []float32{1, 0, 0}},
			{ID: 2, Summary: "has summary", Embedding: nil},
			{ID: 3, Summary: "valid", Embedding: []float32{0, 1, 0}},
		},
	}
	m := NewMatcher(source, &fakeAIClient{embedding: []float32{0, 1, 0}}, DefaultMatchConfig())

	got, err := m.Match(context.Background(), 7, "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("expected only the valid community, got %v", got)
	}
}

func TestMatch_FallbackWhenNoCommunities(t *testing.T) {
	source := &fakeMatchSource{
		similar: []common.Entity{
			{ID: 5, Name: "Hartwell Properties"},
			{ID: 9, Name: "Meridian Brokerage"},
		},
		shared: []common.Entity{{ID: 11, Name: "Agent's Fees"}},
		hubs:   []common.Entity{{ID: 2, Name: "Late Fee"}, {ID: 5, Name: "Hartwell Properties"}},
	}
	m := NewMatcher(source, &fakeAIClient{}, DefaultMatchConfig())

	got, err := m.Match(context.Background(), 7, "fees", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single ad-hoc community, got %d", len(got))
	}
	c := got[0]
	if !c.AdHoc {
		t.Fatal("fallback community must carry the AdHoc flag")
	}
	want := []int64{2, 5, 9, 11}
	if len(c.Members) != len(want) {
		t.Fatalf("unexpected members: %v", c.Members)
	}
	for i, id := range want {
		if c.Members[i] != id {
			t.Fatalf("members not sorted/deduped: %v", c.Members)
		}
	}
	if c.Summary != "" {
		t.Fatalf("ad-hoc community must not fake a summary: %q", c.Summary)
	}
}

func TestMatch_FallbackEmptyGraph(t *testing.T) {
	m := NewMatcher(&fakeMatchSource{}, &fakeAIClient{}, DefaultMatchConfig())
	got, err := m.Match(context.Background(), 7, "anything", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a graph with no entities, got %v", got)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Cosine(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
