package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/evidence"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

// NotFoundAnswer is returned whenever retrieval produced no evidence. The
// model is never called in that case: an answer synthesized from nothing
// would be the model's prior knowledge dressed up as a document fact.
const NotFoundAnswer = "The available documents do not contain this information."

// synthesize renders the evidence block and asks the model for the answer.
// Empty evidence short-circuits to the canned not-found response without a
// model call.
func (c *Client) synthesize(
	ctx context.Context,
	graphID int64,
	question string,
	passages []evidence.Passage,
	reports []common.Community,
) (string, []string, error) {
	if len(passages) == 0 && len(reports) == 0 {
		logger.Debug("[Query] No evidence retrieved, skipping synthesis", "graphId", graphID)
		return NotFoundAnswer, []string{}, nil
	}

	block, known, err := c.formatEvidence(ctx, graphID, passages)
	if err != nil {
		return "", nil, err
	}

	var prompt string
	if len(reports) > 0 {
		prompt = fmt.Sprintf(ai.GlobalAnswerPrompt, formatReports(reports), block, question)
	} else {
		prompt = fmt.Sprintf(ai.AnswerPrompt, block, question)
	}

	answer, err := c.aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("synthesize answer: %w: %s", common.ErrExternalService, err)
	}

	return answer, extractCitations(answer, known), nil
}

// formatEvidence serializes passages as "[<id>] (document: <title>,
// section: <heading>)" blocks and returns the set of citable public ids.
func (c *Client) formatEvidence(
	ctx context.Context,
	graphID int64,
	passages []evidence.Passage,
) (string, map[string]struct{}, error) {
	docIDs := make([]int64, 0, len(passages))
	sectionIDs := make([]int64, 0, len(passages))
	seenDoc := make(map[int64]struct{})
	seenSection := make(map[int64]struct{})
	for _, p := range passages {
		if _, ok := seenDoc[p.DocumentID]; !ok {
			seenDoc[p.DocumentID] = struct{}{}
			docIDs = append(docIDs, p.DocumentID)
		}
		if _, ok := seenSection[p.SectionID]; !ok {
			seenSection[p.SectionID] = struct{}{}
			sectionIDs = append(sectionIDs, p.SectionID)
		}
	}

	documents, err := c.store.DocumentsByIDs(ctx, graphID, docIDs)
	if err != nil {
		return "", nil, err
	}
	sections, err := c.store.SectionsByIDs(ctx, graphID, sectionIDs)
	if err != nil {
		return "", nil, err
	}

	docTitle := make(map[int64]string, len(documents))
	for _, d := range documents {
		docTitle[d.ID] = d.Title
	}
	sectionTitle := make(map[int64]string, len(sections))
	for _, s := range sections {
		sectionTitle[s.ID] = s.Title
	}

	var b strings.Builder
	known := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		known[p.PublicID] = struct{}{}
		fmt.Fprintf(&b, "[%s] (document: %s, section: %s)\n%s\n\n",
			p.PublicID, docTitle[p.DocumentID], sectionTitle[p.SectionID], p.Text)
	}
	return strings.TrimRight(b.String(), "\n"), known, nil
}

func formatReports(reports []common.Community) string {
	var b strings.Builder
	for _, r := range reports {
		if r.Summary == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", r.Title, r.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
