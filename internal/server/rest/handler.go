package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/dmitrijs2005/todoapi/internal/server/services"
	"github.com/labstack/echo/v4"
)

func (s *HTTPServer) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Todo API", "version": Version})
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	report := s.health.Check(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"status":   report.Status,
		"services": report.Services,
	})
}

func (s *HTTPServer) handleSignup(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return newError(http.StatusBadRequest, "Validation Error", "Invalid request data")
	}

	res, err := s.users.Signup(c.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return newError(http.StatusBadRequest, "HTTP Error", "User with this email already exists")
		}
		return err
	}

	s.logger.Info(c.Request().Context(), "Registered", "user_id", res.User.ID)
	return c.JSON(http.StatusCreated, toAuthResponse(res))
}

func (s *HTTPServer) handleSignin(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return newError(http.StatusBadRequest, "Validation Error", "Invalid request data")
	}

	res, err := s.users.Signin(c.Request().Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorValidation):
			return newError(http.StatusBadRequest, "HTTP Error", "Email is required")
		case errors.Is(err, common.ErrorUnauthorized):
			return newError(http.StatusUnauthorized, "HTTP Error", "Invalid email or user not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, toAuthResponse(res))
}

func (s *HTTPServer) handleMe(c echo.Context) error {
	claims, ok := claimsFrom(c)
	if !ok {
		return common.ErrorUnauthorized
	}
	return c.JSON(http.StatusOK, userResponse{ID: claims.UserID, Email: claims.Email})
}

func (s *HTTPServer) handleListTasks(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	filter := models.TaskFilter{Search: c.QueryParam("search")}
	if v := c.QueryParam("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			return newError(http.StatusBadRequest, "Validation Error", "completed must be true or false")
		}
		filter.Completed = &completed
	}

	tasks, err := s.tasks.List(c.Request().Context(), owner, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskList(tasks))
}

func (s *HTTPServer) handleCreateTask(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return newError(http.StatusBadRequest, "Validation Error", "Invalid request data")
	}

	task, err := s.tasks.Create(c.Request().Context(), owner, models.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toTaskResponse(task))
}

func (s *HTTPServer) handleGetTask(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	task, err := s.tasks.Get(c.Request().Context(), owner, c.Param("task_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResponse(task))
}

func (s *HTTPServer) handleUpdateTask(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	var req updateTaskRequest
	if err := c.Bind(&req); err != nil {
		return newError(http.StatusBadRequest, "Validation Error", "Invalid request data")
	}

	task, err := s.tasks.Update(c.Request().Context(), owner, c.Param("task_id"), models.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResponse(task))
}

func (s *HTTPServer) handleDeleteTask(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(c.Request().Context(), owner, c.Param("task_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) handleSimilarTasks(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	limit, err := limitParam(c)
	if err != nil {
		return err
	}

	similar, err := s.tasks.Similar(c.Request().Context(), owner, c.Param("task_id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSimilarList(similar))
}

func (s *HTTPServer) handleSearchTasks(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	limit, err := limitParam(c)
	if err != nil {
		return err
	}

	found, err := s.tasks.Search(c.Request().Context(), owner, c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSimilarList(found))
}

// limitParam reads ?limit=. Absent means the service default (0); an explicit
// value must lie in 1..MaxSimilarLimit.
func limitParam(c echo.Context) (int, error) {
	v := c.QueryParam("limit")
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 || limit > services.MaxSimilarLimit {
		return 0, newError(http.StatusBadRequest, "Validation Error", "limit must be between 1 and "+strconv.Itoa(services.MaxSimilarLimit))
	}
	return limit, nil
}
