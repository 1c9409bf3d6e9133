package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/internal/websocket"
	"github.com/linguaforge/server/usecase"
)

// Services are the engines the routes expose
type Services struct {
	Ledger        *usecase.Ledger
	Lessons       *usecase.LessonEngine
	Conversation  *usecase.ConversationEngine
	Subscriptions *usecase.SubscriptionService
	Profile       *usecase.ProfileService
	Hub           *websocket.Hub
}

type handler struct {
	Services
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, services Services, logger *zap.Logger) {
	h := &handler{Services: services, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "linguaforge-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Learner session and profile
	v1.POST("/session/login", h.login)
	v1.POST("/session/logout", h.logout)
	v1.GET("/me", h.me)
	v1.PATCH("/me", h.updateProfile)
	v1.POST("/me/activity", h.recordActivity)
	v1.GET("/me/achievements", h.achievements)
	v1.GET("/dashboard", h.dashboard)

	// Lesson catalog and runner
	v1.GET("/lessons", h.listLessons)
	v1.GET("/lessons/:id", h.getLesson)
	v1.POST("/lessons/:id/start", h.startLesson)
	v1.GET("/lesson", h.currentLesson)
	v1.POST("/lesson/answer", h.submitAnswer)
	v1.POST("/lesson/advance", h.advance)

	// Plans
	v1.GET("/plans", h.plans)
	v1.POST("/subscription", h.subscribe)
	v1.DELETE("/subscription", h.cancelSubscription)

	// Voice conversation
	v1.GET("/conversation", h.conversation)
	v1.DELETE("/conversation", h.resetConversation)

	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(h.Hub, c, logger)
	})
}

func (h *handler) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind login request", zap.Error(err))
		return badRequest(c)
	}

	user, err := h.Ledger.Login(c.Request().Context(), req.Name, req.Email)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *handler) logout(c echo.Context) error {
	if err := h.Ledger.Logout(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	h.Lessons.Reset()
	h.Conversation.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) me(c echo.Context) error {
	user, err := h.Ledger.Current()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *handler) updateProfile(c echo.Context) error {
	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind profile update", zap.Error(err))
		return badRequest(c)
	}

	user, err := h.Ledger.Update(c.Request().Context(), func(u *entities.User) {
		if req.Name != nil {
			u.Name = *req.Name
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.Languages != nil {
			u.Languages = append([]string(nil), (*req.Languages)...)
		}
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *handler) recordActivity(c echo.Context) error {
	user, err := h.Ledger.RecordActivity(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *handler) dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.Ledger.Current()
	if err != nil {
		return h.fail(c, err)
	}
	stats, err := h.Profile.Stats(ctx)
	if err != nil {
		return h.fail(c, err)
	}

	lessons := h.Lessons.Lessons()
	summaries := make([]LessonSummary, 0, len(lessons))
	for _, l := range lessons {
		status, err := h.Lessons.Status(ctx, l.ID)
		if err != nil {
			return h.fail(c, err)
		}
		summaries = append(summaries, LessonSummary{
			ID:            l.ID,
			Title:         l.Title,
			Language:      l.Language,
			Difficulty:    l.Difficulty,
			XP:            l.XP,
			ExerciseCount: len(l.Exercises),
			Status:        status,
		})
	}

	return c.JSON(http.StatusOK, DashboardResponse{
		User:               user,
		ProgressPercentage: stats.ProgressPercentage,
		LessonsCompleted:   stats.LessonsCompleted,
		Achievements:       stats.Achievements,
		Lessons:            summaries,
	})
}

func (h *handler) achievements(c echo.Context) error {
	achievements, err := h.Profile.Achievements(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, achievements)
}

func (h *handler) listLessons(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Lessons.Lessons())
}

func (h *handler) getLesson(c echo.Context) error {
	id, err := lessonID(c)
	if err != nil {
		return h.fail(c, err)
	}
	lesson, err := h.Lessons.Lesson(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, lesson)
}

func (h *handler) startLesson(c echo.Context) error {
	id, err := lessonID(c)
	if err != nil {
		return h.fail(c, err)
	}
	session, err := h.Lessons.StartLesson(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *handler) currentLesson(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Lessons.Session(c.Request().Context()))
}

func (h *handler) submitAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind answer", zap.Error(err))
		return badRequest(c)
	}

	result, err := h.Lessons.SubmitAnswer(c.Request().Context(), req.ExerciseID, req.Selection)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) advance(c echo.Context) error {
	session, err := h.Lessons.Advance(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *handler) plans(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Subscriptions.Plans())
}

func (h *handler) subscribe(c echo.Context) error {
	var req SubscribeRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind subscription request", zap.Error(err))
		return badRequest(c)
	}

	user, receipt, err := h.Subscriptions.Subscribe(c.Request().Context(), req.Plan)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SubscribeResponse{User: user, Receipt: receipt})
}

func (h *handler) cancelSubscription(c echo.Context) error {
	user, err := h.Subscriptions.CancelSubscription(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *handler) conversation(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Conversation.Snapshot())
}

func (h *handler) resetConversation(c echo.Context) error {
	h.Conversation.Reset()
	return c.JSON(http.StatusOK, h.Conversation.Snapshot())
}

func lessonID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, entities.Validation("lesson id must be a number, got %q", c.Param("id"))
	}
	return id, nil
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request format",
	})
}

// fail maps the error taxonomy to an HTTP status. Provider details are only logged.
func (h *handler) fail(c echo.Context, err error) error {
	status, code, message := http.StatusInternalServerError, "internal_error", "Something went wrong"

	switch {
	case errors.Is(err, entities.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, entities.ErrUnsupportedCapability):
		status, code, message = http.StatusNotImplemented, "unsupported_capability", err.Error()
	case errors.Is(err, entities.ErrProvider):
		status, code, message = http.StatusBadGateway, "provider_error", "An external service failed. Please try again."
	case errors.Is(err, entities.ErrValidation):
		status, code, message = http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, entities.ErrInvalidState):
		status, code, message = http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, entities.ErrNoActiveUser):
		status, code, message = http.StatusUnauthorized, "no_active_user", "Please log in first"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Warn("Request rejected",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}

	return c.JSON(status, ErrorResponse{Error: code, Message: message})
}
