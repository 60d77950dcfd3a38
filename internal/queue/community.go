package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

// CommunityBuildMsg is one community-index rebuild job. JobID correlates the
// publish and worker log lines of one job.
type CommunityBuildMsg struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
	GraphID int64  `json:"graph_id"`
}

// PublishCommunityBuild enqueues a rebuild of the community index for one
// graph.
func PublishCommunityBuild(ch *amqp091.Channel, graphID int64, reason string) error {
	jobID, err := util.NewPublicID()
	if err != nil {
		return err
	}
	msg := CommunityBuildMsg{
		Message: reason,
		JobID:   jobID,
		GraphID: graphID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, CommunityBuildQueue, data)
}

// ProcessCommunityBuild runs the offline community build for the graph
// named in the message and persists the result. A lease lock keyed by the
// graph keeps concurrent workers from rebuilding the same index; a busy lock
// sends the message back through the retry queue. Per-cluster summarization
// failures degrade that cluster inside the builder; only infrastructure
// errors propagate and trigger a redelivery.
func ProcessCommunityBuild(
	ctx context.Context,
	aiClient ai.GraphAIClient,
	graphStore store.GraphStore,
	locker *leaselock.Client,
	cfg community.BuildConfig,
	msg string,
) error {
	data := new(CommunityBuildMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	lockKey := fmt.Sprintf("community_build:%d", data.GraphID)
	return locker.WithLease(ctx, lockKey, leaselock.Options{
		TTL:         30 * time.Minute,
		TokenPrefix: "worker_",
	}, func(ctx context.Context) error {
		logger.Info("[Queue] Building communities", "graph_id", data.GraphID, "job_id", data.JobID)

		builder := community.NewBuilder(graphStore, aiClient, cfg)
		communities, err := builder.Build(ctx, data.GraphID)
		if err != nil {
			return err
		}

		if err := graphStore.SaveCommunities(ctx, data.GraphID, communities); err != nil {
			return err
		}

		logger.Info("[Queue] Community build finished", "graph_id", data.GraphID, "job_id", data.JobID, "communities", len(communities))
		return nil
	})
}
