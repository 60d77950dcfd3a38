package common

// Document represents a single source file (a contract, an invoice) that was
// ingested into a knowledge graph. Documents own sections and chunks through
// containment and are immutable after ingestion apart from metadata refreshes.
type Document struct {
	ID        int64             `json:"id"`
	GraphID   int64             `json:"graph_id"`
	Title     string            `json:"title"`
	Languages []string          `json:"languages,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Section is a titled subdivision of a document, possibly nested one level
// below a parent section. Path holds the ordered titles from the document
// root down to this section.
type Section struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	ParentID   *int64    `json:"parent_id,omitempty"`
	Title      string    `json:"title"`
	Path       []string  `json:"path"`
	Depth      int       `json:"depth"`
	Embedding  []float32 `json:"-"`
}

// Chunk is the atomic retrievable unit: a contiguous span of extracted text.
// Every chunk belongs to exactly one document and exactly one section.
// Fingerprint is a content hash used for exact-duplicate detection.
type Chunk struct {
	ID          int64  `json:"id"`
	PublicID    string `json:"public_id"`
	DocumentID  int64  `json:"document_id"`
	SectionID   int64  `json:"section_id"`
	Position    int    `json:"position"`
	Text        string `json:"text"`
	Fingerprint string `json:"fingerprint"`
}

// Entity is a named concept extracted from text: a person, organization,
// defined term, amount, date, and so on. Degree and Importance are
// graph-topology scalars maintained by the indexer. An entity appears in
// every document and section that contains a chunk mentioning it, which for
// hub entities can span many documents.
type Entity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Aliases     []string  `json:"aliases,omitempty"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
	Degree      int       `json:"degree"`
	Importance  float64   `json:"importance"`
	CommunityID int64     `json:"community_id"`
}

// ScoredEntity pairs an entity id with a retrieval score. CommunityID is
// carried along so downstream denoising can apply community-affinity
// adjustments without re-fetching entities.
type ScoredEntity struct {
	ID          int64   `json:"id"`
	Score       float64 `json:"score"`
	CommunityID int64   `json:"community_id"`
}

// Community is a detected cluster of topically related entities together
// with a generated title and summary used as a semantic index for thematic
// queries. AdHoc marks degraded communities synthesized at query time when
// no precomputed partition exists; they carry no real summary and have
// materially lower precision.
type Community struct {
	ID        int64     `json:"id"`
	GraphID   int64     `json:"graph_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Rank      float64   `json:"rank"`
	Members   []int64   `json:"members"`
	Embedding []float32 `json:"-"`
	AdHoc     bool      `json:"ad_hoc,omitempty"`
}

// Scope narrows retrieval to a set of documents and optionally sections.
// A nil *Scope always means "no constraint": the query is treated as
// corpus-wide and every consumer must degrade gracefully.
type Scope struct {
	DocumentIDs []int64 `json:"document_ids"`
	SectionIDs  []int64 `json:"section_ids,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// RetrievalStats exposes counts at each denoising stage. These counters are
// the primary operational lever for diagnosing retrieval quality regressions.
type RetrievalStats struct {
	SeedEntities       int `json:"seed_entities"`
	RankedEntities     int `json:"ranked_entities"`
	PenalizedEntities  int `json:"penalized_entities"`
	EntitiesAfterGap   int `json:"entities_after_gap"`
	FetchedChunks      int `json:"fetched_chunks"`
	AfterExactDedupe   int `json:"after_exact_dedupe"`
	AfterNearDedupe    int `json:"after_near_dedupe"`
	FinalChunks        int `json:"final_chunks"`
	FinalTokens        int `json:"final_tokens"`
	ScopedDocuments    int `json:"scoped_documents"`
	MatchedCommunities int `json:"matched_communities"`
}
