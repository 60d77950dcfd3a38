package query

import (
	"slices"
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventSeedEntityIDs       TraceEventKind = "seed_entity_ids"
	TraceEventRankedEntityIDs     TraceEventKind = "ranked_entity_ids"
	TraceEventMatchedCommunityIDs TraceEventKind = "matched_community_ids"
	TraceEventConsideredChunkIDs  TraceEventKind = "considered_chunk_ids"
	TraceEventUsedChunkIDs        TraceEventKind = "used_chunk_ids"
	TraceEventSubQuestions        TraceEventKind = "sub_questions"
)

// TraceEvent is an extensible event envelope for retrieval tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	EntityIDs    []int64
	CommunityIDs []int64
	ChunkIDs     []string
	SubQuestions []string
}

// Tracer is a sink for retrieval tracing events. Implementers can forward
// events to logs, telemetry, or custom post-processing pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordSeedEntityIDs(t Tracer, ids ...int64) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSeedEntityIDs, EntityIDs: ids})
}

func RecordRankedEntityIDs(t Tracer, ids ...int64) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventRankedEntityIDs, EntityIDs: ids})
}

func RecordMatchedCommunityIDs(t Tracer, ids ...int64) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventMatchedCommunityIDs, CommunityIDs: ids})
}

func RecordConsideredChunkIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventConsideredChunkIDs, ChunkIDs: ids})
}

func RecordUsedChunkIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventUsedChunkIDs, ChunkIDs: ids})
}

func RecordSubQuestions(t Tracer, questions ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSubQuestions, SubQuestions: questions})
}

// RetrievalTrace collects what a query run considered and used: seed and
// ranked entities, matched communities, candidate and cited chunks, and the
// sub-questions a multi-hop run decomposed into.
//
// RetrievalTrace is safe for concurrent use.
type RetrievalTrace struct {
	mu sync.Mutex

	seedEntityIDs       map[int64]struct{}
	rankedEntityIDs     map[int64]struct{}
	matchedCommunityIDs map[int64]struct{}
	consideredChunkIDs  map[string]struct{}
	usedChunkIDs        map[string]struct{}
	subQuestions        []string
}

type RetrievalTraceSnapshot struct {
	SeedEntityIDs       []int64
	RankedEntityIDs     []int64
	MatchedCommunityIDs []int64
	ConsideredChunkIDs  []string
	UsedChunkIDs        []string
	SubQuestions        []string
}

func NewRetrievalTrace() *RetrievalTrace {
	return &RetrievalTrace{
		seedEntityIDs:       make(map[int64]struct{}),
		rankedEntityIDs:     make(map[int64]struct{}),
		matchedCommunityIDs: make(map[int64]struct{}),
		consideredChunkIDs:  make(map[string]struct{}),
		usedChunkIDs:        make(map[string]struct{}),
	}
}

func (t *RetrievalTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventSeedEntityIDs:
		for _, id := range event.EntityIDs {
			if id == 0 {
				continue
			}
			t.seedEntityIDs[id] = struct{}{}
		}
	case TraceEventRankedEntityIDs:
		for _, id := range event.EntityIDs {
			if id == 0 {
				continue
			}
			t.rankedEntityIDs[id] = struct{}{}
		}
	case TraceEventMatchedCommunityIDs:
		for _, id := range event.CommunityIDs {
			if id == 0 {
				continue
			}
			t.matchedCommunityIDs[id] = struct{}{}
		}
	case TraceEventConsideredChunkIDs:
		for _, id := range event.ChunkIDs {
			if id == "" {
				continue
			}
			t.consideredChunkIDs[id] = struct{}{}
		}
	case TraceEventUsedChunkIDs:
		for _, id := range event.ChunkIDs {
			if id == "" {
				continue
			}
			t.usedChunkIDs[id] = struct{}{}
		}
	case TraceEventSubQuestions:
		for _, q := range event.SubQuestions {
			if q == "" || slices.Contains(t.subQuestions, q) {
				continue
			}
			t.subQuestions = append(t.subQuestions, q)
		}
	default:
		return
	}
}

func (t *RetrievalTrace) Snapshot() RetrievalTraceSnapshot {
	if t == nil {
		return RetrievalTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := RetrievalTraceSnapshot{
		SeedEntityIDs:       make([]int64, 0, len(t.seedEntityIDs)),
		RankedEntityIDs:     make([]int64, 0, len(t.rankedEntityIDs)),
		MatchedCommunityIDs: make([]int64, 0, len(t.matchedCommunityIDs)),
		ConsideredChunkIDs:  make([]string, 0, len(t.consideredChunkIDs)),
		UsedChunkIDs:        make([]string, 0, len(t.usedChunkIDs)),
		SubQuestions:        slices.Clone(t.subQuestions),
	}

	for id := range t.seedEntityIDs {
		s.SeedEntityIDs = append(s.SeedEntityIDs, id)
	}
	for id := range t.rankedEntityIDs {
		s.RankedEntityIDs = append(s.RankedEntityIDs, id)
	}
	for id := range t.matchedCommunityIDs {
		s.MatchedCommunityIDs = append(s.MatchedCommunityIDs, id)
	}
	for id := range t.consideredChunkIDs {
		s.ConsideredChunkIDs = append(s.ConsideredChunkIDs, id)
	}
	for id := range t.usedChunkIDs {
		s.UsedChunkIDs = append(s.UsedChunkIDs, id)
	}

	slices.Sort(s.SeedEntityIDs)
	slices.Sort(s.RankedEntityIDs)
	slices.Sort(s.MatchedCommunityIDs)
	sort.Strings(s.ConsideredChunkIDs)
	sort.Strings(s.UsedChunkIDs)

	return s
}
