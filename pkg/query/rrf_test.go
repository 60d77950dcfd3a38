package query

import (
	"reflect"
	"testing"

	"github.com/lexgraph/lexgraph/pkg/common"
)

func TestFuseByReciprocalRank_DoubleLegWins(t *testing.T) {
	lexical := []common.Chunk{
		{ID: 1, PublicID: "a"},
		{ID: 2, PublicID: "b"},
	}
	semantic := []common.Chunk{
		{ID: 3, PublicID: "c"},
		{ID: 2, PublicID: "b"},
	}

	fused := fuseByReciprocalRank(lexical, semantic)

	got := make([]int64, 0, len(fused))
	for _, p := range fused {
		got = append(got, p.ID)
	}
	// Chunk 2 appears in both legs at rank 2 and beats every single-leg
	// rank-1 hit: 2/(60+2) > 1/(60+1).
	want := []int64{2, 1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("fused order = %v, want %v", got, want)
	}
}

func TestFuseByReciprocalRank_TieBreaksByID(t *testing.T) {
	a := []common.Chunk{{ID: 9}}
	b := []common.Chunk{{ID: 4}}

	fused := fuseByReciprocalRank(a, b)
	if len(fused) != 2 {
		t.Fatalf("fused %d passages, want 2", len(fused))
	}
	if fused[0].ID != 4 || fused[1].ID != 9 {
		t.Fatalf("tie broke to %d,%d, want 4,9", fused[0].ID, fused[1].ID)
	}
}

func TestRRFComponent_InvalidRank(t *testing.T) {
	if got := rrfComponent(0, 1.0); got != 0 {
		t.Fatalf("rrfComponent(0) = %f, want 0", got)
	}
}
