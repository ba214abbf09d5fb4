package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
)

const identityContextKey = "callerIdentity"

// Register wires up all API routes on the provided Echo instance. auth may
// be nil, in which case callers stay anonymous and are identified by client
// IP; limiter may be nil to disable rate limiting.
func Register(e *echo.Echo, b Board, stream Streamer, auth Authenticator, limiter *RateLimiter, logger *log.Logger) {
	ident := callerIdentity(auth)
	guard := limiter.Middleware(CategoryDefault)

	e.GET("/api/tasks", getTasks(b, logger), ident, guard)
	e.POST("/api/tasks/op", postOperation(b), ident, guard)
	e.POST("/api/tasks/sync", postSync(b), ident, guard, GzipRequest())
	e.GET("/api/history", getHistory(b), ident, guard)
	e.GET("/api/agent-status", getAgentStatus(b), ident, guard)
	e.POST("/api/agent-status", postAgentStatus(b), ident, guard)
	e.GET("/api/stream", streamChanges(stream), ident, guard)
	e.GET("/healthz", healthz())
}

// callerIdentity resolves who is calling, for rate limiting and request
// logs. With auth configured a valid bearer token is mandatory; without it
// the client IP stands in. EventSource clients cannot set headers, so a
// token query parameter substitutes for the Authorization header.
func callerIdentity(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth == nil {
				c.Set(identityContextKey, c.RealIP())
				return next(c)
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if token := c.QueryParam("token"); token != "" {
					header = "Bearer " + token
				}
			}
			userID, err := auth.UserIDFromAuthHeader(header)
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(identityContextKey, userID)
			return next(c)
		}
	}
}

func identityOf(c echo.Context) string {
	if id, ok := c.Get(identityContextKey).(string); ok && id != "" {
		return id
	}
	return c.RealIP()
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		view := b.Tasks(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetTasksReturned(len(view.Tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, view)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postOperation(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, postOperationMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var op domain.Operation
		if err := dec.Decode(&op); err != nil {
			return c.JSON(http.StatusBadRequest, operationResponse{Error: "invalid body"})
		}
		if err := b.Apply(c.Request().Context(), op); err != nil {
			return operationFailure(c, err)
		}
		return c.JSON(http.StatusOK, operationResponse{OK: true})
	}
}

func postSync(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, postSyncMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		snapshots := make([]domain.TaskSnapshot, 0, 16)
		if err := dec.Decode(&snapshots); err != nil {
			return c.JSON(http.StatusBadRequest, operationResponse{Error: "invalid body"})
		}

		err := b.Reconcile(c.Request().Context(), snapshots)
		if err != nil {
			var partial *board.PartialSyncError
			if errors.As(err, &partial) {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, operationResponse{Error: "sync applied partially, safe to retry"})
			}
			return operationFailure(c, err)
		}
		return c.JSON(http.StatusOK, operationResponse{OK: true})
	}
}

func getHistory(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		author := strings.TrimSpace(c.QueryParam("author"))
		events := b.History(c.Request().Context(), author)
		return c.JSON(http.StatusOK, events)
	}
}

func getAgentStatus(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.SessionStatus(c.Request().Context()))
	}
}

func postAgentStatus(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, postSessionMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var status domain.SessionStatus
		if err := dec.Decode(&status); err != nil {
			return c.JSON(http.StatusBadRequest, operationResponse{Error: "invalid body"})
		}
		if err := b.PushSessionStatus(c.Request().Context(), status); err != nil {
			return operationFailure(c, err)
		}
		return c.JSON(http.StatusOK, operationResponse{OK: true})
	}
}

// operationFailure maps engine errors onto transport responses. Store
// failures stay generic so storage internals never reach the caller.
func operationFailure(c echo.Context, err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, operationResponse{Error: "validation failed", Reasons: verr.Reasons})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, operationResponse{Error: "task not found"})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, operationResponse{Error: "operation failed"})
	}
}
