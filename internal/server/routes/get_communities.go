package routes

import (
	"errors"
	"net/http"

	"github.com/lexgraph/lexgraph/internal/server/middleware"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
	pgxstore "github.com/lexgraph/lexgraph/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// GetCommunitiesHandler lists the persisted community reports of a graph.
func GetCommunitiesHandler(c echo.Context) error {
	type getCommunitiesParams struct {
		GraphID int64 `param:"id" validate:"required,numeric"`
	}

	type getCommunitiesResponse struct {
		Message     string             `json:"message"`
		Communities []common.Community `json:"communities,omitempty"`
	}

	params := new(getCommunitiesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getCommunitiesResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getCommunitiesResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	st := pgxstore.NewGraphDBStore(c.(*middleware.AppContext).App.DBConn)

	communities, err := st.GraphCommunities(ctx, params.GraphID)
	if err != nil {
		logger.Error("Failed to load communities", "graph_id", params.GraphID, "err", err)
		if errors.Is(err, common.ErrGraphUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, getCommunitiesResponse{
				Message: "Graph storage unavailable",
			})
		}
		return c.JSON(http.StatusInternalServerError, getCommunitiesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCommunitiesResponse{
		Message:     "OK",
		Communities: communities,
	})
}
