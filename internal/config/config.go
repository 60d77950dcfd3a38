// Package config builds the typed process configuration from the
// environment, once, at startup. Pipeline stages never read ambient state;
// everything they need arrives through these structs.
package config

import (
	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/evidence"
	"github.com/lexgraph/lexgraph/pkg/query"
	"github.com/lexgraph/lexgraph/pkg/rank"
	"github.com/lexgraph/lexgraph/pkg/scope"
)

type ServerConfig struct {
	Port           string
	MigrationsPath string
}

type DatabaseConfig struct {
	URL string
}

type QueueConfig struct {
	User     string
	Password string
	Host     string
	Port     string
}

type AIConfig struct {
	Adapter string

	EmbeddingModel  string
	AnswerModel     string
	ExtractionModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentEmbeddings int64
	RequestTimeoutMin       int64

	TokenEncoding string
}

// Config is the full process configuration. Loaded once and passed down by
// dependency injection.
type Config struct {
	Debug bool

	Server   ServerConfig
	Database DatabaseConfig
	Queue    QueueConfig
	AI       AIConfig

	Rank     rank.Config
	Scope    scope.Config
	Evidence evidence.Config
	Query    query.Config
	Build    community.BuildConfig
	Match    community.MatchConfig
}

// Load reads the environment into a Config. Unset values fall back to the
// calibrated defaults of the respective package.
func Load() Config {
	cfg := Config{
		Debug: util.GetEnvBool("DEBUG", false),
		Server: ServerConfig{
			Port:           util.GetEnvString("PORT", "8080"),
			MigrationsPath: util.GetEnvString("MIGRATIONS_PATH", "migrations"),
		},
		Database: DatabaseConfig{
			URL: util.GetEnv("DATABASE_URL"),
		},
		Queue: QueueConfig{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnv("RABBITMQ_HOST"),
			Port:     util.GetEnv("RABBITMQ_PORT"),
		},
		AI: AIConfig{
			Adapter:                 util.GetEnv("AI_ADAPTER"),
			EmbeddingModel:          util.GetEnv("AI_EMBED_MODEL"),
			AnswerModel:             util.GetEnv("AI_CHAT_ANSWER_MODEL"),
			ExtractionModel:         util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingURL:            util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey:            util.GetEnv("AI_EMBED_KEY"),
			ChatURL:                 util.GetEnv("AI_CHAT_URL"),
			ChatKey:                 util.GetEnv("AI_CHAT_KEY"),
			MaxConcurrentEmbeddings: int64(util.GetEnvNumeric("AI_PARALLEL_EMBED", 4)),
			RequestTimeoutMin:       int64(util.GetEnvNumeric("AI_TIMEOUT_MIN", 5)),
			TokenEncoding:           util.GetEnvString("AI_TOKEN_ENCODING", "o200k_base"),
		},
		Rank:     rank.DefaultConfig(),
		Scope:    scope.DefaultConfig(),
		Evidence: evidence.DefaultConfig(),
		Query:    query.DefaultClientConfig(),
		Build:    community.DefaultBuildConfig(),
		Match:    community.DefaultMatchConfig(),
	}

	cfg.Rank.Damping = util.GetEnvNumeric("RANK_DAMPING", cfg.Rank.Damping)
	cfg.Rank.MaxIterations = util.GetEnvInt("RANK_MAX_ITERATIONS", cfg.Rank.MaxIterations)
	cfg.Rank.TopK = util.GetEnvInt("RANK_TOP_K", cfg.Rank.TopK)

	cfg.Scope.DominanceRatio = util.GetEnvNumeric("SCOPE_DOMINANCE_RATIO", cfg.Scope.DominanceRatio)
	cfg.Scope.MinSeedFraction = util.GetEnvNumeric("SCOPE_MIN_SEED_FRACTION", cfg.Scope.MinSeedFraction)

	cfg.Evidence.ScopeFilterEnabled = util.GetEnvBool("EVIDENCE_SCOPE_FILTER", cfg.Evidence.ScopeFilterEnabled)
	cfg.Evidence.CommunityPenaltyEnabled = util.GetEnvBool("EVIDENCE_COMMUNITY_PENALTY", cfg.Evidence.CommunityPenaltyEnabled)
	cfg.Evidence.ScoreGapEnabled = util.GetEnvBool("EVIDENCE_SCORE_GAP", cfg.Evidence.ScoreGapEnabled)
	cfg.Evidence.ExactDedupeEnabled = util.GetEnvBool("EVIDENCE_EXACT_DEDUPE", cfg.Evidence.ExactDedupeEnabled)
	cfg.Evidence.NearDedupeEnabled = util.GetEnvBool("EVIDENCE_NEAR_DEDUPE", cfg.Evidence.NearDedupeEnabled)
	cfg.Evidence.NearDedupeThreshold = util.GetEnvNumeric("EVIDENCE_NEAR_DEDUPE_THRESHOLD", cfg.Evidence.NearDedupeThreshold)
	cfg.Evidence.MaxChunksPerEntity = util.GetEnvInt("EVIDENCE_MAX_CHUNKS_PER_ENTITY", cfg.Evidence.MaxChunksPerEntity)

	cfg.Query.DefaultTokenBudget = util.GetEnvInt("QUERY_TOKEN_BUDGET", cfg.Query.DefaultTokenBudget)
	cfg.Query.SeedSimilarityTopK = util.GetEnvInt("QUERY_SEED_SIMILARITY_TOP_K", cfg.Query.SeedSimilarityTopK)
	cfg.Query.MaxSeedEntities = util.GetEnvInt("QUERY_MAX_SEED_ENTITIES", cfg.Query.MaxSeedEntities)
	cfg.Query.CommunityTopK = util.GetEnvInt("QUERY_COMMUNITY_TOP_K", cfg.Query.CommunityTopK)

	cfg.Build.MinClusterSize = util.GetEnvInt("COMMUNITY_MIN_CLUSTER_SIZE", cfg.Build.MinClusterSize)
	cfg.Build.MaxConcurrentReports = util.GetEnvInt("COMMUNITY_MAX_CONCURRENT_REPORTS", cfg.Build.MaxConcurrentReports)

	return cfg
}
