package pgx

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/rank"

	pgxv5 "github.com/jackc/pgx/v5"
)

// Relation edges are stored once per pair; the traversal graph is undirected
// so every query feeds both directions into the adjacency.
const relationEdgesQuery = `
	SELECT source_id, target_id, weight
	FROM entity_edges
	WHERE graph_id = $1 AND edge_type = 'relation'`

const similarityEdgesQuery = `
	SELECT source_id, target_id, weight
	FROM entity_edges
	WHERE graph_id = $1 AND edge_type = 'similarity'`

// Two-hop paths through section-level similarity: an entity mentioned in one
// section reaches the entities of semantically similar sections. Weights are
// summed over all similar section pairs connecting the same entity pair.
const sectionSimilarityPathsQuery = `
	SELECT em1.entity_id, em2.entity_id, SUM(ss.similarity)
	FROM section_similarity ss
	JOIN entity_mentions em1
	  ON em1.graph_id = ss.graph_id AND em1.section_id = ss.section_a
	JOIN entity_mentions em2
	  ON em2.graph_id = ss.graph_id AND em2.section_id = ss.section_b
	WHERE ss.graph_id = $1 AND em1.entity_id <> em2.entity_id
	GROUP BY em1.entity_id, em2.entity_id`

// Cross-document bridges: an entity reaches the hub entity of a section in
// another document when some third entity appears in both sections. Weight is
// the number of distinct bridging entities.
const bridgePathsQuery = `
	SELECT em.entity_id, sh.entity_id, COUNT(DISTINCT b.entity_id)::double precision
	FROM entity_mentions em
	JOIN entity_mentions b
	  ON b.graph_id = em.graph_id AND b.section_id = em.section_id
	 AND b.entity_id <> em.entity_id
	JOIN entity_mentions b2
	  ON b2.graph_id = b.graph_id AND b2.entity_id = b.entity_id
	 AND b2.document_id <> em.document_id
	JOIN section_hubs sh
	  ON sh.graph_id = b2.graph_id AND sh.section_id = b2.section_id
	 AND sh.entity_id <> em.entity_id
	WHERE em.graph_id = $1
	GROUP BY em.entity_id, sh.entity_id`

// Section hub expansion: every entity of a section reaches the section's
// designated hub entity, weighted by mention count.
const hubExpansionPathsQuery = `
	SELECT em.entity_id, sh.entity_id, COUNT(*)::double precision
	FROM section_hubs sh
	JOIN entity_mentions em
	  ON em.graph_id = sh.graph_id AND em.section_id = sh.section_id
	WHERE sh.graph_id = $1 AND em.entity_id <> sh.entity_id
	GROUP BY em.entity_id, sh.entity_id`

// LoadRankGraph assembles the weighted entity traversal graph, one adjacency
// per path type. Parallel edges between the same pair accumulate.
func (s *GraphDBStore) LoadRankGraph(ctx context.Context, graphID int64) (*rank.Graph, error) {
	g := rank.NewGraph()

	undirected := []struct {
		path  rank.PathType
		query string
	}{
		{rank.PathRelation, relationEdgesQuery},
		{rank.PathEntitySimilarity, similarityEdgesQuery},
	}
	for _, leg := range undirected {
		if err := s.loadEdges(ctx, g, leg.path, leg.query, graphID, true); err != nil {
			return nil, err
		}
	}

	directed := []struct {
		path  rank.PathType
		query string
	}{
		{rank.PathSectionSimilarity, sectionSimilarityPathsQuery},
		{rank.PathBridge, bridgePathsQuery},
		{rank.PathHubExpansion, hubExpansionPathsQuery},
	}
	for _, leg := range directed {
		if err := s.loadEdges(ctx, g, leg.path, leg.query, graphID, false); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *GraphDBStore) loadEdges(ctx context.Context, g *rank.Graph, path rank.PathType, query string, graphID int64, bothDirections bool) error {
	rows, err := s.conn.Query(ctx, query, graphID)
	if err != nil {
		return storeErr("load rank graph", err)
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		var weight float64
		if err := rows.Scan(&from, &to, &weight); err != nil {
			return storeErr("load rank graph", err)
		}
		g.AddEdge(path, from, to, weight)
		if bothDirections {
			g.AddEdge(path, to, from, weight)
		}
	}
	return storeErr("load rank graph", rows.Err())
}

// EntityRelations returns the relation edges of the graph for community
// detection. Similarity and structural edges are excluded so clustering
// follows explicit relationships only.
func (s *GraphDBStore) EntityRelations(ctx context.Context, graphID int64) ([]community.Relation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_id, target_id, weight, description
		FROM entity_edges
		WHERE graph_id = $1 AND edge_type = 'relation'
		ORDER BY source_id, target_id`,
		graphID)
	if err != nil {
		return nil, storeErr("entity relations", err)
	}
	relations, err := scanRelations(rows)
	return relations, storeErr("entity relations", err)
}

func scanRelations(rows pgxv5.Rows) ([]community.Relation, error) {
	defer rows.Close()
	relations := make([]community.Relation, 0)
	for rows.Next() {
		var r community.Relation
		if err := rows.Scan(&r.Source, &r.Target, &r.Weight, &r.Description); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}
