package routes

import (
	"errors"
	"net/http"

	"github.com/lexgraph/lexgraph/internal/server/middleware"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/query"

	"github.com/labstack/echo/v4"
)

// QueryGraphHandler answers a question against one graph. The request is
// chat-shaped; the last message carries the question.
func QueryGraphHandler(c echo.Context) error {
	type queryGraphRequest struct {
		GraphID     int64            `param:"id" validate:"required,numeric"`
		Messages    []ai.ChatMessage `json:"messages" validate:"required,min=1"`
		Route       string           `json:"route"`
		TokenBudget int              `json:"token_budget"`
	}

	type queryGraphResponse struct {
		Message string           `json:"message"`
		Answer  *query.Answer    `json:"answer,omitempty"`
		Metrics *ai.ModelMetrics `json:"metrics,omitempty"`
	}

	data := new(queryGraphRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryGraphResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryGraphResponse{
			Message: "Invalid request body",
		})
	}

	switch query.Route(data.Route) {
	case "", query.RouteAuto, query.RouteLocal, query.RouteGlobal, query.RouteMultiHop:
	default:
		return c.JSON(http.StatusBadRequest, queryGraphResponse{
			Message: "Unknown route",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	answer, err := app.QueryClient.Query(ctx, query.Request{
		GraphID:     data.GraphID,
		Query:       data.Messages[len(data.Messages)-1].Message,
		Route:       query.Route(data.Route),
		TokenBudget: data.TokenBudget,
	})
	if err != nil {
		logger.Error("[Query] graph query failed", "graph_id", data.GraphID, "err", err)
		if errors.Is(err, common.ErrGraphUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, queryGraphResponse{
				Message: "Graph storage unavailable",
			})
		}
		return c.JSON(http.StatusInternalServerError, queryGraphResponse{
			Message: "Internal server error",
		})
	}

	metrics := app.AiClient.GetMetrics()
	return c.JSON(http.StatusOK, queryGraphResponse{
		Message: answer.Text,
		Answer:  answer,
		Metrics: &metrics,
	})
}
