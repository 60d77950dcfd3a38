package routes

import (
	"net/http"

	"github.com/lexgraph/lexgraph/internal/queue"
	"github.com/lexgraph/lexgraph/internal/server/middleware"
	"github.com/lexgraph/lexgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReindexGraphHandler enqueues a rebuild of the community index for one
// graph. The worker picks the job up asynchronously.
func ReindexGraphHandler(c echo.Context) error {
	type reindexParams struct {
		GraphID int64 `param:"id" validate:"required,numeric"`
	}

	type reindexResponse struct {
		Message string `json:"message"`
		GraphID int64  `json:"graph_id,omitempty"`
	}

	params := new(reindexParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, reindexResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, reindexResponse{
			Message: "Invalid request body",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishCommunityBuild(ch, params.GraphID, "reindex requested"); err != nil {
		logger.Error("Failed to publish community build", "graph_id", params.GraphID, "err", err)
		return c.JSON(http.StatusInternalServerError, reindexResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, reindexResponse{
		Message: "Community rebuild queued",
		GraphID: params.GraphID,
	})
}
