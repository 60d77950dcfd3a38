package community

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/common"
)

// fakeAIClient implements ai.GraphAIClient for tests. Report generation can
// be failed selectively by prompt substring.
type fakeAIClient struct {
	failReportsContaining string
	failEmbeddings        bool
	embedding             []float32
}

func (f *fakeAIClient) GenerateCompletion(_ context.Context, prompt string, _ ...ai.GenerateOption) (string, error) {
	return "answer", nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(
	_ context.Context, _ string, _ string, prompt string, out any, _ ...ai.GenerateOption,
) error {
	if f.failReportsContaining != "" && strings.Contains(prompt, f.failReportsContaining) {
		return errors.New("model unavailable")
	}
	if r, ok := out.(*report); ok {
		r.Title = "Lease cluster"
		r.Summary = "Entities bound by the same lease agreement."
	}
	return nil
}

func (f *fakeAIClient) GenerateChat(_ context.Context, _ []ai.ChatMessage, _ ...ai.GenerateOption) (string, error) {
	return "answer", nil
}

func (f *fakeAIClient) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	if f.failEmbeddings {
		return nil, errors.New("embedding service down")
	}
	if f.embedding != nil {
		return f.embedding, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		vec, err := f.GenerateEmbedding(ctx, inputs[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeBuildSource struct {
	entities  []common.Entity
	relations []Relation
}

func (f *fakeBuildSource) GraphEntities(_ context.Context, _ int64) ([]common.Entity, error) {
	return f.entities, nil
}

func (f *fakeBuildSource) EntityRelations(_ context.Context, _ int64) ([]Relation, error) {
	return f.relations, nil
}

func triangleSource() *fakeBuildSource {
	return &fakeBuildSource{
		entities: []common.Entity{
			{ID: 1, Name: "Hartwell Properties", Description: "Lessor", Importance: 0.9},
			{ID: 2, Name: "Meridian Brokerage", Description: "Agent", Importance: 0.6},
			{ID: 3, Name: "Agent's Fees", Description: "Commission clause", Importance: 0.3},
			{ID: 4, Name: "Orphan", Description: "Unconnected", Importance: 0.1},
		},
		relations: []Relation{
			{Source: 1, Target: 2, Weight: 1, Description: "engages as leasing agent"},
			{Source: 2, Target: 3, Weight: 1, Description: "is owed fees under"},
			{Source: 1, Target: 3, Weight: 1, Description: "pays fees per"},
		},
	}
}

// The prompt's framing of the member list must match the lines actually
// rendered underneath it, or the model is told to expect fields that never
// appear.
func TestReportPrompt_MemberLinesMatchFraming(t *testing.T) {
	src := triangleSource()
	b := NewBuilder(src, &fakeAIClient{}, DefaultBuildConfig())

	byID := make(map[int64]common.Entity, len(src.entities))
	for _, e := range src.entities {
		byID[e.ID] = e
	}

	prompt := b.reportPrompt([]int64{1, 2, 3}, byID, src.relations)

	if !strings.Contains(prompt, `one "name: description" line each`) {
		t.Fatalf("prompt framing does not describe the rendered member lines:\n%s", prompt)
	}
	for _, line := range []string{
		"- Hartwell Properties: Lessor\n",
		"- Meridian Brokerage: Agent\n",
		"- Agent's Fees: Commission clause\n",
	} {
		if !strings.Contains(prompt, line) {
			t.Fatalf("prompt missing member line %q:\n%s", line, prompt)
		}
	}
}

func TestBuild_MinSizeFilterAndRank(t *testing.T) {
	b := NewBuilder(triangleSource(), &fakeAIClient{}, DefaultBuildConfig())

	got, err := b.Build(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The orphan singleton is below the minimum size and must be discarded.
	if len(got) != 1 {
		t.Fatalf("expected 1 community, got %d", len(got))
	}
	c := got[0]
	if len(c.Members) != 3 {
		t.Fatalf("unexpected members: %v", c.Members)
	}
	wantRank := (0.9 + 0.6 + 0.3) / 3
	if diff := c.Rank - wantRank; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("rank = %f, want %f", c.Rank, wantRank)
	}
	if c.Title == "" || c.Summary == "" {
		t.Fatalf("expected report to be filled, got %+v", c)
	}
	if len(c.Embedding) == 0 {
		t.Fatal("expected summary embedding")
	}
	if c.AdHoc {
		t.Fatal("precomputed community wrongly flagged ad-hoc")
	}
}

func TestBuild_ReportFailureDegradesNotAborts(t *testing.T) {
	client := &fakeAIClient{failReportsContaining: "Hartwell"}
	b := NewBuilder(triangleSource(), client, DefaultBuildConfig())

	got, err := b.Build(context.Background(), 7)
	if err != nil {
		t.Fatalf("per-cluster failure must not abort the build: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the degraded community to be kept, got %d", len(got))
	}
	c := got[0]
	if c.Summary != "" || len(c.Embedding) != 0 {
		t.Fatalf("degraded community should have no summary/embedding: %+v", c)
	}
	// Members and rank survive regardless of report failure.
	if len(c.Members) != 3 || c.Rank == 0 {
		t.Fatalf("structural fields missing on degraded community: %+v", c)
	}
}

func TestBuild_EmbeddingFailureDegradesNotAborts(t *testing.T) {
	client := &fakeAIClient{failEmbeddings: true}
	b := NewBuilder(triangleSource(), client, DefaultBuildConfig())

	got, err := b.Build(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 community, got %d", len(got))
	}
	c := got[0]
	if c.Summary == "" {
		t.Fatal("report should have succeeded")
	}
	if len(c.Embedding) != 0 {
		t.Fatal("embedding should be absent after persistent failure")
	}
}

func TestBuild_EmptyGraph(t *testing.T) {
	b := NewBuilder(&fakeBuildSource{}, &fakeAIClient{}, DefaultBuildConfig())
	got, err := b.Build(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty graph, got %v", got)
	}
}
