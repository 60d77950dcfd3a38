package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/query"
)

// App holds the shared dependencies of the HTTP process. Everything in here
// is built once at startup and safe for concurrent use.
type App struct {
	DBConn      *pgxpool.Pool
	Queue       *amqp091.Channel
	AiClient    ai.GraphAIClient
	QueryClient query.GraphQueryClient
	Cfg         config.Config
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
