package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/ai/token"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/evidence"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/rank"
	"github.com/lexgraph/lexgraph/pkg/scope"
	"github.com/lexgraph/lexgraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Config holds the route-level tunables. Pipeline-stage thresholds live in
// their own packages; this struct only covers orchestration breadth.
type Config struct {
	// SeedSimilarityTopK is how many embedding nearest neighbors join the
	// seed set alongside name matches.
	SeedSimilarityTopK int
	// MaxSeedEntities caps the unioned seed set.
	MaxSeedEntities int
	// HybridSearchLimit is the per-leg candidate count of the global
	// route's lexical+vector search.
	HybridSearchLimit int
	// CommunityTopK is how many matched communities feed the global route.
	CommunityTopK int
	// DefaultTokenBudget applies when a request leaves the budget unset.
	DefaultTokenBudget int
	// MaxSubQuestionConcurrency bounds parallel sub-question discovery.
	MaxSubQuestionConcurrency int
}

// DefaultClientConfig returns the orchestration parameters used when none
// are configured.
func DefaultClientConfig() Config {
	return Config{
		SeedSimilarityTopK:        8,
		MaxSeedEntities:           20,
		HybridSearchLimit:         40,
		CommunityTopK:             3,
		DefaultTokenBudget:        8000,
		MaxSubQuestionConcurrency: 3,
	}
}

// Client routes queries through seed extraction, ranking, scoping, and the
// evidence pipeline. All of its graph access is read-only, so any step can
// be cancelled or retried without cleanup.
type Client struct {
	store    store.GraphStore
	aiClient ai.GraphAIClient
	ranker   Ranker
	pipeline *evidence.Pipeline
	matcher  *community.Matcher
	counter  token.Counter
	scopeCfg scope.Config
	cfg      Config
	tracer   Tracer
}

// Option configures optional client behavior.
type Option func(*Client)

// WithTracer attaches a sink for retrieval trace events.
func WithTracer(t Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithRanker swaps the ranking backbone, e.g. for the embedding-based
// variant.
func WithRanker(r Ranker) Option {
	return func(c *Client) {
		c.ranker = r
	}
}

// WithScopeConfig overrides the document/section scoping thresholds.
func WithScopeConfig(cfg scope.Config) Option {
	return func(c *Client) {
		c.scopeCfg = cfg
	}
}

// NewClient assembles the query client. The pipeline, matcher, and counter
// are shared across requests; the client holds no per-query state.
func NewClient(
	s store.GraphStore,
	aiC ai.GraphAIClient,
	pipeline *evidence.Pipeline,
	matcher *community.Matcher,
	counter token.Counter,
	cfg Config,
	opts ...Option,
) *Client {
	c := &Client{
		store:    s,
		aiClient: aiC,
		pipeline: pipeline,
		matcher:  matcher,
		counter:  counter,
		scopeCfg: scope.DefaultConfig(),
		cfg:      cfg,
	}
	c.ranker = NewGraphRanker(s, rank.DefaultConfig())
	for _, o := range opts {
		o(c)
	}
	return c
}

// Query dispatches by the requested route, or by the model's intent
// classification when the route is auto or unset.
func (c *Client) Query(ctx context.Context, req Request) (*Answer, error) {
	req = c.applyDefaults(req)

	extraction, err := c.extractSeedsRetry(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	route := req.Route
	if route == RouteAuto || route == "" {
		switch extraction.Intent {
		case "global":
			route = RouteGlobal
		case "multihop":
			route = RouteMultiHop
		default:
			route = RouteLocal
		}
	}

	switch route {
	case RouteGlobal:
		return c.runGlobal(ctx, req, extraction)
	case RouteMultiHop:
		return c.runMultiHop(ctx, req, extraction)
	default:
		return c.runLocal(ctx, req, extraction)
	}
}

func (c *Client) QueryLocal(ctx context.Context, req Request) (*Answer, error) {
	req = c.applyDefaults(req)
	extraction, err := c.extractSeedsRetry(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return c.runLocal(ctx, req, extraction)
}

func (c *Client) QueryGlobal(ctx context.Context, req Request) (*Answer, error) {
	req = c.applyDefaults(req)
	extraction, err := c.extractSeedsRetry(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return c.runGlobal(ctx, req, extraction)
}

func (c *Client) QueryMultiHop(ctx context.Context, req Request) (*Answer, error) {
	req = c.applyDefaults(req)
	extraction, err := c.extractSeedsRetry(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return c.runMultiHop(ctx, req, extraction)
}

func (c *Client) applyDefaults(req Request) Request {
	if req.TokenBudget <= 0 {
		req.TokenBudget = c.cfg.DefaultTokenBudget
	}
	return req
}

// extractSeedsRetry wraps the extraction call in the orchestration-level
// backoff. Stages below never retry on their own.
func (c *Client) extractSeedsRetry(ctx context.Context, question string) (*seedExtraction, error) {
	return util.RetryBackoff(ctx, util.DefaultBackoff, common.Transient, func(ctx context.Context) (*seedExtraction, error) {
		return c.extractSeeds(ctx, question)
	})
}

// runLocal anchors retrieval on the entities the question names: seeds,
// one ranking pass, document/section scoping, then the denoising pipeline.
func (c *Client) runLocal(ctx context.Context, req Request, extraction *seedExtraction) (*Answer, error) {
	seeds, embedding, err := c.resolveSeeds(ctx, req.GraphID, extraction)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return c.noEvidenceAnswer(RouteLocal, common.RetrievalStats{}), nil
	}
	RecordSeedEntityIDs(c.tracer, seeds...)

	entities, err := c.rankWithCommunities(ctx, req.GraphID, seeds, embedding)
	if err != nil {
		return nil, err
	}

	queryScope, err := c.resolveScope(ctx, req.GraphID, seeds, embedding)
	if err != nil {
		return nil, err
	}

	passages, stats, err := c.pipeline.Retrieve(ctx, req.GraphID, entities, queryScope, req.TokenBudget)
	if err != nil {
		return nil, err
	}
	stats.SeedEntities = len(seeds)

	return c.finish(ctx, req, RouteLocal, passages, nil, stats)
}

// runGlobal answers thematic questions: matched communities contribute
// their member entities and their reports, and an independent hybrid
// lexical+vector search contributes fused candidates merged into the
// pipeline before deduplication.
func (c *Client) runGlobal(ctx context.Context, req Request, extraction *seedExtraction) (*Answer, error) {
	matched, err := util.RetryBackoff(ctx, util.DefaultBackoff, common.Transient, func(ctx context.Context) ([]common.Community, error) {
		return c.matcher.Match(ctx, req.GraphID, extraction.SemanticTerm, c.cfg.CommunityTopK)
	})
	if err != nil {
		return nil, err
	}
	for _, m := range matched {
		RecordMatchedCommunityIDs(c.tracer, m.ID)
	}

	entities := communityEntities(matched)
	stats := common.RetrievalStats{MatchedCommunities: len(matched)}

	extra, err := c.hybridSearch(ctx, req.GraphID, req.Query, extraction.SemanticTerm)
	if err != nil {
		return nil, err
	}

	if len(entities) == 0 && len(extra) == 0 {
		return c.noEvidenceAnswer(RouteGlobal, stats), nil
	}

	passages, pipeStats, err := c.pipeline.RetrieveWithExtra(ctx, req.GraphID, entities, extra, nil, req.TokenBudget)
	if err != nil {
		return nil, err
	}
	pipeStats.MatchedCommunities = stats.MatchedCommunities

	reports := make([]common.Community, 0, len(matched))
	for _, m := range matched {
		if m.Summary != "" && !m.AdHoc {
			reports = append(reports, m)
		}
	}

	return c.finish(ctx, req, RouteGlobal, passages, reports, pipeStats)
}

// runMultiHop decomposes the question, resolves seeds for the original and
// every sub-question in parallel, unions them, and runs one ranking pass
// over the union. For comprehensive queries a coverage step adds one
// representative chunk from any document retrieval missed entirely.
func (c *Client) runMultiHop(ctx context.Context, req Request, extraction *seedExtraction) (*Answer, error) {
	subQuestions, err := c.decompose(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	RecordSubQuestions(c.tracer, subQuestions...)

	seeds, embedding, err := c.resolveSeeds(ctx, req.GraphID, extraction)
	if err != nil {
		return nil, err
	}

	subSeeds, err := c.resolveSubQuestionSeeds(ctx, req.GraphID, subQuestions)
	if err != nil {
		return nil, err
	}

	// Union, never replacement: sub-question seeds extend the original
	// question's seeds, which keeps precision on queries whose wording
	// matches the graph's entity names exactly.
	seen := make(map[int64]struct{}, len(seeds))
	for _, id := range seeds {
		seen[id] = struct{}{}
	}
	for _, id := range subSeeds {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			seeds = append(seeds, id)
		}
	}
	if len(seeds) == 0 {
		return c.noEvidenceAnswer(RouteMultiHop, common.RetrievalStats{}), nil
	}
	RecordSeedEntityIDs(c.tracer, seeds...)

	entities, err := c.rankWithCommunities(ctx, req.GraphID, seeds, embedding)
	if err != nil {
		return nil, err
	}

	queryScope, err := c.resolveScope(ctx, req.GraphID, seeds, embedding)
	if err != nil {
		return nil, err
	}

	passages, stats, err := c.pipeline.Retrieve(ctx, req.GraphID, entities, queryScope, req.TokenBudget)
	if err != nil {
		return nil, err
	}
	stats.SeedEntities = len(seeds)

	if isComprehensive(req.Query) {
		passages, stats, err = c.fillCoverageGaps(ctx, req.GraphID, passages, stats, req.TokenBudget)
		if err != nil {
			return nil, err
		}
	}

	return c.finish(ctx, req, RouteMultiHop, passages, nil, stats)
}

// rankWithCommunities runs the ranking backbone and stamps each scored
// entity with its community membership for the affinity-penalty stage.
func (c *Client) rankWithCommunities(ctx context.Context, graphID int64, seeds []int64, embedding []float32) ([]common.ScoredEntity, error) {
	entities, err := util.RetryBackoff(ctx, util.DefaultBackoff, common.Transient, func(ctx context.Context) ([]common.ScoredEntity, error) {
		return c.ranker.Rank(ctx, graphID, seeds, embedding)
	})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	RecordRankedEntityIDs(c.tracer, ids...)

	resolved, err := c.store.EntitiesByIDs(ctx, graphID, ids)
	if err != nil {
		return nil, err
	}
	communityOf := make(map[int64]int64, len(resolved))
	for _, e := range resolved {
		communityOf[e.ID] = e.CommunityID
	}
	for i := range entities {
		entities[i].CommunityID = communityOf[entities[i].ID]
	}
	return entities, nil
}

// resolveScope runs both levels of the document/section voting.
func (c *Client) resolveScope(ctx context.Context, graphID int64, seeds []int64, embedding []float32) (*common.Scope, error) {
	memberships, err := c.store.DocumentsForEntities(ctx, graphID, seeds)
	if err != nil {
		return nil, err
	}

	s := scope.ResolveDocuments(seeds, memberships, c.scopeCfg)
	if s == nil {
		return nil, nil
	}

	sectionMemberships, err := c.store.SectionsForEntities(ctx, graphID, seeds, s.DocumentIDs)
	if err != nil {
		return nil, err
	}
	sections, err := c.store.SectionCandidates(ctx, graphID, s.DocumentIDs)
	if err != nil {
		return nil, err
	}

	candidates := make([]scope.SectionCandidate, 0, len(sections))
	for _, sec := range sections {
		candidate := scope.SectionCandidate{
			ID:         sec.ID,
			DocumentID: sec.DocumentID,
			ParentID:   sec.ParentID,
		}
		if len(embedding) > 0 && len(sec.Embedding) > 0 {
			candidate.Similarity = community.Cosine(embedding, sec.Embedding)
		}
		candidates = append(candidates, candidate)
	}

	return scope.ResolveSections(s, seeds, sectionMemberships, candidates, c.scopeCfg), nil
}

// hybridSearch runs the lexical and vector legs and fuses them by
// reciprocal rank.
func (c *Client) hybridSearch(ctx context.Context, graphID int64, queryText, semanticTerm string) ([]evidence.Passage, error) {
	embedding, err := c.aiClient.GenerateEmbedding(ctx, []byte(semanticTerm))
	if err != nil {
		return nil, fmt.Errorf("embed hybrid search term: %w: %s", common.ErrExternalService, err)
	}

	lexical, err := c.store.LexicalSearchChunks(ctx, graphID, queryText, c.cfg.HybridSearchLimit)
	if err != nil {
		return nil, err
	}
	semantic, err := c.store.SimilarChunks(ctx, graphID, embedding, c.cfg.HybridSearchLimit)
	if err != nil {
		return nil, err
	}

	fused := fuseByReciprocalRank(lexical, semantic)
	for _, p := range fused {
		RecordConsideredChunkIDs(c.tracer, p.PublicID)
	}
	logger.Debug("[Query] Hybrid search fused",
		"graphId", graphID,
		"lexical", len(lexical),
		"semantic", len(semantic),
		"fused", len(fused),
	)
	return fused, nil
}

// decompose asks the model to split the question into self-contained
// sub-questions.
func (c *Client) decompose(ctx context.Context, question string) ([]string, error) {
	type decomposition struct {
		SubQuestions []string `json:"sub_questions"`
	}
	prompt := fmt.Sprintf(ai.DecomposePrompt, question)

	out, err := util.RetryBackoff(ctx, util.DefaultBackoff, common.Transient, func(ctx context.Context) (*decomposition, error) {
		var d decomposition
		if err := c.aiClient.GenerateCompletionWithFormat(
			ctx,
			"question_decomposition",
			"Self-contained sub-questions of a multi-step question",
			prompt,
			&d,
		); err != nil {
			return nil, fmt.Errorf("decompose question: %w: %s", common.ErrExternalService, err)
		}
		return &d, nil
	})
	if err != nil {
		return nil, err
	}
	return out.SubQuestions, nil
}

// resolveSubQuestionSeeds runs discovery for every sub-question in
// parallel. The traces are read-only and independent; the consolidated
// ranking pass runs after all of them are merged.
func (c *Client) resolveSubQuestionSeeds(ctx context.Context, graphID int64, subQuestions []string) ([]int64, error) {
	if len(subQuestions) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	union := make([]int64, 0)

	limit := c.cfg.MaxSubQuestionConcurrency
	if limit <= 0 {
		limit = DefaultClientConfig().MaxSubQuestionConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, sub := range subQuestions {
		g.Go(func() error {
			extraction, err := c.extractSeedsRetry(gctx, sub)
			if err != nil {
				return err
			}
			seeds, _, err := c.resolveSeeds(gctx, graphID, extraction)
			if err != nil {
				return err
			}
			mu.Lock()
			union = append(union, seeds...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })
	return union, nil
}

// fillCoverageGaps adds one representative chunk for each document entirely
// absent from the evidence, as long as the token budget allows it.
func (c *Client) fillCoverageGaps(
	ctx context.Context,
	graphID int64,
	passages []evidence.Passage,
	stats common.RetrievalStats,
	budget int,
) ([]evidence.Passage, common.RetrievalStats, error) {
	allDocs, err := c.store.ListDocumentIDs(ctx, graphID)
	if err != nil {
		return nil, stats, err
	}

	covered := make(map[int64]struct{}, len(passages))
	for _, p := range passages {
		covered[p.DocumentID] = struct{}{}
	}
	missing := make([]int64, 0)
	for _, id := range allDocs {
		if _, ok := covered[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return passages, stats, nil
	}

	representatives, err := c.store.FirstChunkPerDocument(ctx, graphID, missing)
	if err != nil {
		return nil, stats, err
	}

	added := 0
	for _, docID := range missing {
		chunk, ok := representatives[docID]
		if !ok {
			continue
		}
		cost := c.counter.Count(chunk.Text)
		if stats.FinalTokens+cost > budget {
			continue
		}
		passages = append(passages, evidence.Passage{Chunk: chunk})
		stats.FinalTokens += cost
		stats.FinalChunks++
		added++
	}
	if added > 0 {
		logger.Debug("[Query] Coverage gap fill", "graphId", graphID, "added", added)
	}
	return passages, stats, nil
}

// finish synthesizes the answer and assembles the response payload.
func (c *Client) finish(
	ctx context.Context,
	req Request,
	route Route,
	passages []evidence.Passage,
	reports []common.Community,
	stats common.RetrievalStats,
) (*Answer, error) {
	for _, p := range passages {
		RecordConsideredChunkIDs(c.tracer, p.PublicID)
	}

	type synthResult struct {
		text  string
		cited []string
	}
	res, err := util.RetryBackoff(ctx, util.DefaultBackoff, common.Transient, func(ctx context.Context) (synthResult, error) {
		text, ids, err := c.synthesize(ctx, req.GraphID, req.Query, passages, reports)
		return synthResult{text: text, cited: ids}, err
	})
	if err != nil {
		return nil, err
	}
	RecordUsedChunkIDs(c.tracer, res.cited...)

	return &Answer{
		Text:          res.text,
		CitedChunkIDs: res.cited,
		Route:         route,
		Stats:         stats,
	}, nil
}

// noEvidenceAnswer is the explicit "information not found" outcome for
// queries whose seed resolution came up empty. It is a first-class answer,
// not an error, and no model call is made.
func (c *Client) noEvidenceAnswer(route Route, stats common.RetrievalStats) *Answer {
	return &Answer{
		Text:          NotFoundAnswer,
		CitedChunkIDs: []string{},
		Route:         route,
		Stats:         stats,
	}
}

// communityEntities scores the member entities of matched communities by
// community position, best community first.
func communityEntities(matched []common.Community) []common.ScoredEntity {
	scored := make([]common.ScoredEntity, 0)
	seen := make(map[int64]struct{})
	for i, m := range matched {
		score := 1.0 / float64(i+1)
		for _, member := range m.Members {
			if _, ok := seen[member]; ok {
				continue
			}
			seen[member] = struct{}{}
			scored = append(scored, common.ScoredEntity{ID: member, Score: score, CommunityID: m.ID})
		}
	}
	return scored
}

// isComprehensive flags "list all" style questions that should trigger the
// coverage gap fill.
func isComprehensive(question string) bool {
	q := strings.ToLower(question)
	for _, marker := range []string{"all ", "every ", "each ", "list ", "overview", "alle ", "jede", "auflist"} {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}
