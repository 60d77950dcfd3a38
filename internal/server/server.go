package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/internal/queue"
	mid "github.com/lexgraph/lexgraph/internal/server/middleware"
	"github.com/lexgraph/lexgraph/pkg/ai"
	oai "github.com/lexgraph/lexgraph/pkg/ai/ollama"
	gai "github.com/lexgraph/lexgraph/pkg/ai/openai"
	"github.com/lexgraph/lexgraph/pkg/ai/token"
	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/evidence"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/query"
	pgxstore "github.com/lexgraph/lexgraph/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init(cfg config.Config) {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runMigrations(cfg)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to parse database URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init(cfg.Queue)
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	aiClient := NewAIClient(cfg.AI)
	queryClient := NewQueryClient(conn, aiClient, cfg)

	app := &mid.App{
		DBConn:      conn,
		Queue:       ch,
		AiClient:    aiClient,
		QueryClient: queryClient,
		Cfg:         cfg,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func runMigrations(cfg config.Config) {
	m, err := migrate.New("file://"+cfg.Server.MigrationsPath, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to initialize migrations", "err", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

// NewAIClient builds the model client for the configured adapter.
func NewAIClient(cfg config.AIConfig) ai.GraphAIClient {
	switch cfg.Adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  cfg.EmbeddingModel,
			AnswerModel:     cfg.AnswerModel,
			ExtractionModel: cfg.ExtractionModel,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			RequestTimeoutMin:     cfg.RequestTimeoutMin,
			MaxConcurrentRequests: cfg.MaxConcurrentEmbeddings,
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  cfg.EmbeddingModel,
			AnswerModel:     cfg.AnswerModel,
			ExtractionModel: cfg.ExtractionModel,

			EmbeddingURL: cfg.EmbeddingURL,
			EmbeddingKey: cfg.EmbeddingKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,

			RequestTimeoutMin:       cfg.RequestTimeoutMin,
			MaxConcurrentEmbeddings: cfg.MaxConcurrentEmbeddings,
		})
	}
}

// NewQueryClient assembles the full retrieval stack on top of the shared
// connection pool.
func NewQueryClient(conn *pgxpool.Pool, aiClient ai.GraphAIClient, cfg config.Config) query.GraphQueryClient {
	st := pgxstore.NewGraphDBStore(conn)

	var counter token.Counter
	tc, err := token.NewTiktokenCounter(cfg.AI.TokenEncoding)
	if err != nil {
		logger.Warn("Failed to load token encoding, falling back to word counting", "encoding", cfg.AI.TokenEncoding, "err", err)
		counter = token.WordCounter{}
	} else {
		counter = tc
	}

	pipeline := evidence.New(st, counter, cfg.Evidence)
	matcher := community.NewMatcher(st, aiClient, cfg.Match)

	return query.NewClient(
		st, aiClient, pipeline, matcher, counter, cfg.Query,
		query.WithRanker(query.NewGraphRanker(st, cfg.Rank)),
		query.WithScopeConfig(cfg.Scope),
	)
}
