package query

import (
	"reflect"
	"testing"
)

func TestExtractCitations(t *testing.T) {
	known := map[string]struct{}{
		"chunk-1": {},
		"chunk-2": {},
		"chunk_3": {},
	}

	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{
			name:   "order of first appearance",
			answer: "See [[chunk-2]] and [[chunk-1]], also [[chunk-2]] again.",
			want:   []string{"chunk-2", "chunk-1"},
		},
		{
			name:   "unknown ids dropped",
			answer: "Cites [[chunk-1]] and [[made-up]].",
			want:   []string{"chunk-1"},
		},
		{
			name:   "malformed markers skipped",
			answer: "Broken [[ch unk]] then [[]] then [[chunk_3]].",
			want:   []string{"chunk_3"},
		},
		{
			name:   "unterminated marker",
			answer: "Trailing [[chunk-1",
			want:   []string{},
		},
		{
			name:   "no markers",
			answer: "Plain answer without citations.",
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractCitations(tt.answer, known)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("extractCitations(%q) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}
