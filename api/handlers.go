package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-board/broadcast"
	"schedule-board/domain"
)

// Register wires up all board routes on the provided Echo instance. cmds may
// be nil, in which case the instance only serves reads and event streams.
func Register(e *echo.Echo, cmds Commands, snaps broadcast.SnapshotSource, hub *broadcast.Hub, logger *log.Logger) {
	e.POST("/tasks", postTask(cmds, logger), decodeCommandBody(logger))
	e.DELETE("/tasks/:id", deleteTask(cmds, logger))
	e.GET("/tasks", getTasks(snaps))
	e.GET("/events", events(hub, logger))
	e.GET("/stream", stream(hub, logger))
	e.GET("/healthz", healthz(hub))
}

// taskIDParam decodes the id segment from the escaped request path exactly
// once. Echo's :id param is already decoded unless RawPath is set.
func taskIDParam(c echo.Context) (string, error) {
	raw := strings.TrimPrefix(c.Request().URL.EscapedPath(), "/tasks/")
	return url.PathUnescape(raw)
}

var errReadOnly = errors.New("this instance does not accept commands")

func healthz(hub *broadcast.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Sessions: hub.Len()})
	}
}

func getTasks(snaps broadcast.SnapshotSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := snaps.Snapshot(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		tasks := snap.Tasks
		if tasks == nil {
			tasks = domain.Tasks{}
		}
		return c.JSON(http.StatusOK, tasksResponse{Rev: snap.Rev, Tasks: tasks})
	}
}

func postTask(cmds Commands, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newCommandMetrics(c.Request().Context(), logger, "add_task", "/tasks")
		c.SetRequest(c.Request().WithContext(ctx))
		var cmdErr error
		defer func() {
			metrics.Log(c.Response().Status, cmdErr)
		}()

		if cmds == nil {
			metrics.SetErrorStage("read_only")
			cmdErr = errReadOnly
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: errReadOnly.Error()})
		}

		decodeStart := time.Now()
		lr := io.LimitReader(c.Request().Body, postTaskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		var task domain.Task
		decodeErr := dec.Decode(&task)
		metrics.ObserveDecode(time.Since(decodeStart))
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			cmdErr = decodeErr
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		metrics.SetTaskID(task.ID)

		applyStart := time.Now()
		res, addErr := cmds.AddTask(task)
		metrics.ObserveApply(time.Since(applyStart))
		if addErr != nil {
			cmdErr = addErr
			var verr *domain.ValidationError
			if errors.As(addErr, &verr) {
				metrics.SetErrorStage("validation")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
			}
			metrics.SetErrorStage("apply")
			c.Logger().Error(addErr)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: addErr.Error()})
		}
		metrics.SetRev(res.Rev)
		return c.JSON(http.StatusCreated, addTaskResponse{TaskID: res.TaskID, Task: res.Task})
	}
}

func deleteTask(cmds Commands, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newCommandMetrics(c.Request().Context(), logger, "delete_task", "/tasks/:id")
		c.SetRequest(c.Request().WithContext(ctx))
		var cmdErr error
		defer func() {
			metrics.Log(c.Response().Status, cmdErr)
		}()

		if cmds == nil {
			metrics.SetErrorStage("read_only")
			cmdErr = errReadOnly
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: errReadOnly.Error()})
		}

		id, err := taskIDParam(c)
		if err != nil {
			metrics.SetErrorStage("decode")
			cmdErr = err
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		}
		metrics.SetTaskID(id)

		applyStart := time.Now()
		res, delErr := cmds.DeleteTask(id)
		metrics.ObserveApply(time.Since(applyStart))
		if delErr != nil {
			cmdErr = delErr
			var verr *domain.ValidationError
			if errors.As(delErr, &verr) {
				metrics.SetErrorStage("validation")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
			}
			metrics.SetErrorStage("apply")
			c.Logger().Error(delErr)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: delErr.Error()})
		}
		metrics.SetRev(res.Rev)
		metrics.SetExisted(res.Existed)
		return c.JSON(http.StatusOK, deleteTaskResponse{TaskID: res.TaskID, Existed: res.Existed})
	}
}
