package evidence

// Config controls the denoising pipeline. Every stage can be disabled
// independently; with everything off the pipeline reduces to "fetch N chunks
// per entity, concatenate, truncate by budget", a safe if noisy fallback. Every numeric value is a named parameter with an explicit
// semantic; the defaults are calibrated for the score distribution of the
// graph ranking engine and need recalibration if the traversal algorithm
// changes.
type Config struct {
	// ScopeFilterEnabled restricts the candidate chunk fetch to the scoped
	// documents. This is the single highest-leverage noise reduction: a
	// ranked hub entity otherwise pulls near-duplicate chunks from every
	// document it touches.
	ScopeFilterEnabled bool

	// SectionAffinityBoost multiplies the carried score of chunks inside the
	// scoped sections. Section scope modulates ordering rather than hard
	// filtering, so a relevant clause outside the voted section survives.
	SectionAffinityBoost float64

	// CommunityPenaltyEnabled sharpens the score distribution by penalizing
	// entities outside the target community.
	CommunityPenaltyEnabled bool
	// CommunityPenaltyFactor multiplies the score of entities belonging to a
	// community other than the majority community of the top-ranked entities.
	CommunityPenaltyFactor float64
	// CommunityTopN is how many top entities vote on the target community.
	// The penalty is skipped when no majority emerges.
	CommunityTopN int

	// ScoreGapEnabled truncates the entity list at the largest relative
	// score drop instead of a fixed count.
	ScoreGapEnabled bool
	// ScoreGapMinKeep is the minimum number of entities kept regardless of
	// gaps; it guards against an artificial early cliff created by the
	// community penalty swamping real signal.
	ScoreGapMinKeep int
	// ScoreGapDropThreshold is the relative drop (1 - next/current) that
	// counts as the relevance boundary.
	ScoreGapDropThreshold float64

	// MaxChunksPerEntity is the chunk allocation for the top-scored entity;
	// lower-scored entities receive proportionally fewer, minimum 1.
	MaxChunksPerEntity int
	// PerSectionCap and PerDocumentCap are diversity limits so one section
	// or document cannot dominate the evidence.
	PerSectionCap  int
	PerDocumentCap int

	// ExactDedupeEnabled collapses chunks with identical normalized content.
	ExactDedupeEnabled bool

	// NearDedupeEnabled drops chunks whose word-set Jaccard similarity to an
	// already-kept chunk exceeds NearDedupeThreshold. Quadratic, acceptable
	// because upstream stages reduce candidates to tens.
	NearDedupeEnabled   bool
	NearDedupeThreshold float64
}

// DefaultConfig returns the pipeline parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		ScopeFilterEnabled:      true,
		SectionAffinityBoost:    1.25,
		CommunityPenaltyEnabled: true,
		CommunityPenaltyFactor:  0.3,
		CommunityTopN:           3,
		ScoreGapEnabled:         true,
		ScoreGapMinKeep:         6,
		ScoreGapDropThreshold:   0.5,
		MaxChunksPerEntity:      5,
		PerSectionCap:           3,
		PerDocumentCap:          6,
		ExactDedupeEnabled:      true,
		NearDedupeEnabled:       true,
		NearDedupeThreshold:     0.88,
	}
}
