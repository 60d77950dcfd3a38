package community

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BuildSource provides the graph data the builder clusters.
type BuildSource interface {
	GraphEntities(ctx context.Context, graphID int64) ([]common.Entity, error)
	EntityRelations(ctx context.Context, graphID int64) ([]Relation, error)
}

// BuildConfig holds the tunables of the community build step.
type BuildConfig struct {
	// MinClusterSize discards clusters too small to carry topical signal.
	MinClusterSize int
	// MaxMembersInPrompt bounds the entity sample handed to the report model.
	MaxMembersInPrompt int
	// MaxConcurrentReports bounds parallel report generation.
	MaxConcurrentReports int
	// MaxClusterPasses bounds the clustering iteration count.
	MaxClusterPasses int
}

// DefaultBuildConfig returns the build parameters used in production.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MinClusterSize:       3,
		MaxMembersInPrompt:   30,
		MaxConcurrentReports: 5,
		MaxClusterPasses:     10,
	}
}

// Builder computes the community index for a graph: clustering, report
// generation, and summary embedding.
type Builder struct {
	source BuildSource
	client ai.GraphAIClient
	cfg    BuildConfig
}

func NewBuilder(source BuildSource, client ai.GraphAIClient, cfg BuildConfig) *Builder {
	return &Builder{source: source, client: client, cfg: cfg}
}

type report struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Build partitions the graph's entities into communities and annotates each
// with a generated title, summary, and summary embedding. A failed report or
// embedding degrades that single community to unmatchable (empty summary or
// embedding) instead of aborting the build.
func (b *Builder) Build(ctx context.Context, graphID int64) ([]common.Community, error) {
	entities, err := b.source.GraphEntities(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("loading entities: %w", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	relations, err := b.source.EntityRelations(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("loading relations: %w", err)
	}

	byID := make(map[int64]common.Entity, len(entities))
	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	groups := Cluster(ids, relations, b.cfg.MaxClusterPasses)

	minSize := b.cfg.MinClusterSize
	if minSize <= 0 {
		minSize = 3
	}
	kept := make([][]int64, 0, len(groups))
	for _, g := range groups {
		if len(g) >= minSize {
			kept = append(kept, g)
		}
	}

	logger.Debug("[Community] Clustering finished",
		"graph_id", graphID,
		"entities", len(entities),
		"clusters", len(groups),
		"kept", len(kept))

	if len(kept) == 0 {
		return nil, nil
	}

	communities := make([]common.Community, len(kept))
	failures := make([]error, len(kept))

	concurrent := b.cfg.MaxConcurrentReports
	if concurrent <= 0 {
		concurrent = 5
	}
	sem := semaphore.NewWeighted(int64(concurrent))
	eg, ectx := errgroup.WithContext(ctx)

	for i := range kept {
		idx := i
		members := kept[i]
		eg.Go(func() error {
			if err := sem.Acquire(ectx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			c, err := b.buildOne(ectx, graphID, members, byID, relations)
			communities[idx] = c
			failures[idx] = err
			// Per-cluster failures are recorded, never propagated.
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for i, err := range failures {
		if err != nil {
			failed++
			logger.Warn("[Community] Report degraded",
				"graph_id", graphID,
				"members", len(kept[i]),
				"error", err)
		}
	}
	logger.Info("[Community] Build finished",
		"graph_id", graphID,
		"communities", len(communities),
		"degraded", failed)

	return communities, nil
}

// buildOne assembles one community: report, embedding, rank. The returned
// community is always usable; the error reports a degraded summary/embedding.
func (b *Builder) buildOne(
	ctx context.Context,
	graphID int64,
	members []int64,
	byID map[int64]common.Entity,
	relations []Relation,
) (common.Community, error) {
	c := common.Community{
		GraphID: graphID,
		Members: members,
		Rank:    meanImportance(members, byID),
	}

	prompt := b.reportPrompt(members, byID, relations)

	var rep report
	err := b.client.GenerateCompletionWithFormat(ctx,
		"community_report",
		"Title and summary for a cluster of related entities",
		prompt,
		&rep,
	)
	if err != nil {
		return c, fmt.Errorf("report generation: %w", err)
	}
	c.Title = rep.Title
	c.Summary = rep.Summary

	embedding, err := util.RetryBackoff(ctx, util.DefaultBackoff, common.Transient,
		func(rctx context.Context) ([]float32, error) {
			vec, eerr := b.client.GenerateEmbedding(rctx, []byte(rep.Title+"\n"+rep.Summary))
			if eerr != nil {
				return nil, fmt.Errorf("%w: %s", common.ErrExternalService, eerr)
			}
			return vec, nil
		})
	if err != nil {
		return c, fmt.Errorf("summary embedding: %w", err)
	}
	c.Embedding = embedding

	return c, nil
}

// reportPrompt renders the bounded member/relation sample for one cluster.
func (b *Builder) reportPrompt(members []int64, byID map[int64]common.Entity, relations []Relation) string {
	maxMembers := b.cfg.MaxMembersInPrompt
	if maxMembers <= 0 {
		maxMembers = 30
	}

	sample := make([]common.Entity, 0, len(members))
	for _, id := range members {
		if e, ok := byID[id]; ok {
			sample = append(sample, e)
		}
	}
	sort.Slice(sample, func(i, j int) bool {
		if sample[i].Importance != sample[j].Importance {
			return sample[i].Importance > sample[j].Importance
		}
		return sample[i].ID < sample[j].ID
	})
	if len(sample) > maxMembers {
		sample = sample[:maxMembers]
	}

	inCluster := make(map[int64]struct{}, len(members))
	for _, id := range members {
		inCluster[id] = struct{}{}
	}

	var entityLines strings.Builder
	for _, e := range sample {
		entityLines.WriteString(fmt.Sprintf("- %s: %s\n", e.Name, e.Description))
	}

	var relationLines strings.Builder
	for _, r := range relations {
		if _, ok := inCluster[r.Source]; !ok {
			continue
		}
		if _, ok := inCluster[r.Target]; !ok {
			continue
		}
		src, sok := byID[r.Source]
		dst, dok := byID[r.Target]
		if !sok || !dok || r.Description == "" {
			continue
		}
		relationLines.WriteString(fmt.Sprintf("- %s <-> %s: %s\n", src.Name, dst.Name, r.Description))
	}

	return fmt.Sprintf(ai.CommunityReportPrompt, entityLines.String(), relationLines.String())
}

func meanImportance(members []int64, byID map[int64]common.Entity) float64 {
	if len(members) == 0 {
		return 0
	}
	total := 0.0
	for _, id := range members {
		total += byID[id].Importance
	}
	return total / float64(len(members))
}
