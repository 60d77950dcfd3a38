package rank

import (
	"reflect"
	"testing"
)

func chainGraph() *Graph {
	g := NewGraph()
	g.AddEdge(PathRelation, 1, 2, 1.0)
	g.AddEdge(PathRelation, 2, 3, 1.0)
	g.AddEdge(PathRelation, 3, 1, 1.0)
	g.AddEdge(PathEntitySimilarity, 1, 4, 0.5)
	g.AddEdge(PathEntitySimilarity, 4, 1, 0.5)
	return g
}

func TestRank_EmptySeedsReturnsEmpty(t *testing.T) {
	got := Rank(chainGraph(), nil, DefaultConfig())
	if len(got) != 0 {
		t.Fatalf("expected empty result for empty seeds, got %v", got)
	}
}

func TestRank_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	seeds := []int64{1, 3}

	first := Rank(chainGraph(), seeds, cfg)
	second := Rank(chainGraph(), seeds, cfg)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rank output differs between runs:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestRank_SeedOrderIrrelevant(t *testing.T) {
	cfg := DefaultConfig()

	a := Rank(chainGraph(), []int64{1, 3, 4}, cfg)
	b := Rank(chainGraph(), []int64{4, 1, 3}, cfg)

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("seed input order changed output:\na: %v\nb: %v", a, b)
	}
}

func TestRank_SeedsStayRelevant(t *testing.T) {
	// A long tail hanging off the seed should score below the seed itself:
	// teleportation keeps mass query-anchored.
	g := NewGraph()
	g.AddEdge(PathRelation, 1, 2, 1.0)
	g.AddEdge(PathRelation, 2, 3, 1.0)
	g.AddEdge(PathRelation, 3, 4, 1.0)

	got := Rank(g, []int64{1}, DefaultConfig())
	if len(got) == 0 {
		t.Fatal("expected non-empty ranking")
	}
	if got[0].ID != 1 {
		t.Fatalf("expected seed 1 ranked first, got %d", got[0].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score >= got[0].Score {
			t.Fatalf("entity %d score %f >= seed score %f", got[i].ID, got[i].Score, got[0].Score)
		}
	}
}

func TestRank_ZeroMassExcluded(t *testing.T) {
	// Node 9 is disconnected from the seed; it must not appear at all
	// rather than appearing with score 0.
	g := chainGraph()
	g.AddEdge(PathRelation, 9, 10, 1.0)

	got := Rank(g, []int64{1}, DefaultConfig())
	for _, e := range got {
		if e.ID == 9 || e.ID == 10 {
			t.Fatalf("unreachable entity %d returned with score %f", e.ID, e.Score)
		}
	}
}

func TestRank_TieBrokenByEntityID(t *testing.T) {
	// Two structurally identical branches from the seed produce equal
	// scores; the lower id must sort first.
	g := NewGraph()
	g.AddEdge(PathRelation, 1, 7, 1.0)
	g.AddEdge(PathRelation, 1, 5, 1.0)

	got := Rank(g, []int64{1}, DefaultConfig())
	if len(got) != 3 {
		t.Fatalf("expected 3 ranked entities, got %d", len(got))
	}
	if got[1].Score != got[2].Score {
		t.Fatalf("expected tied scores, got %f and %f", got[1].Score, got[2].Score)
	}
	if got[1].ID != 5 || got[2].ID != 7 {
		t.Fatalf("tie not broken by entity id: got order %d, %d", got[1].ID, got[2].ID)
	}
}

func TestRank_TopKLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopK = 2

	got := Rank(chainGraph(), []int64{1}, cfg)
	if len(got) != 2 {
		t.Fatalf("expected 2 entities with TopK=2, got %d", len(got))
	}
}

func TestRank_DisabledPathCarriesNoMass(t *testing.T) {
	g := NewGraph()
	g.AddEdge(PathRelation, 1, 2, 1.0)
	g.AddEdge(PathBridge, 1, 3, 5.0)

	cfg := DefaultConfig()
	cfg.PathWeights = map[PathType]float64{PathRelation: 1.0}

	got := Rank(g, []int64{1}, cfg)
	for _, e := range got {
		if e.ID == 3 {
			t.Fatalf("entity reachable only via disabled path returned: %v", e)
		}
	}
}

func TestRank_SeedWithoutEdgesStillReturned(t *testing.T) {
	g := NewGraph()
	g.AddEdge(PathRelation, 1, 2, 1.0)

	got := Rank(g, []int64{1, 99}, DefaultConfig())
	found := false
	for _, e := range got {
		if e.ID == 99 && e.Score > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("edgeless seed 99 missing from result: %v", got)
	}
}

func TestGraph_MergeOrderIndependent(t *testing.T) {
	partA := NewGraph()
	partA.AddEdge(PathRelation, 1, 2, 0.5)
	partA.AddEdge(PathEntitySimilarity, 2, 3, 1.0)

	partB := NewGraph()
	partB.AddEdge(PathRelation, 1, 2, 0.5)
	partB.AddEdge(PathBridge, 3, 1, 0.7)

	ab := NewGraph()
	ab.Merge(partA)
	ab.Merge(partB)

	ba := NewGraph()
	ba.Merge(partB)
	ba.Merge(partA)

	if !reflect.DeepEqual(Rank(ab, []int64{1}, DefaultConfig()), Rank(ba, []int64{1}, DefaultConfig())) {
		t.Fatal("merge order changed ranking output")
	}
}
