// Package server exposes the task engine over a JSON dashboard API.
package server

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tealeaf2/taskgantt/internal/db"
	"github.com/tealeaf2/taskgantt/internal/engine"
	"github.com/tealeaf2/taskgantt/internal/logging"
	"github.com/tealeaf2/taskgantt/internal/models"
	"github.com/tealeaf2/taskgantt/internal/propagator"
)

// Options wires the server's collaborators. Tasks and Events are
// optional; without them edits live only in memory and the event
// endpoint reports the log as unavailable.
type Options struct {
	Engine *engine.Engine
	Tasks  *db.TaskRepository
	Events *db.EventRepository
}

// Server serves the dashboard API. All analysis is delegated to the
// engine; handlers only translate HTTP to engine calls.
type Server struct {
	app    *fiber.App
	engine *engine.Engine
	tasks  *db.TaskRepository
	events *db.EventRepository
	logger zerolog.Logger
}

// New creates a Server with its routes registered.
func New(opts Options) *Server {
	s := &Server{
		app:    fiber.New(),
		engine: opts.Engine,
		tasks:  opts.Tasks,
		events: opts.Events,
		logger: logging.Component("server"),
	}
	s.routes()
	return s
}

// Listen blocks serving the API on addr.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("dashboard api listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	api.Get("/tasks", s.handleListTasks)
	api.Post("/tasks", s.handleReplaceTasks)
	api.Get("/tasks/:id", s.handleGetTask)
	api.Put("/tasks/:id", s.handleUpsertTask)
	api.Delete("/tasks/:id", s.handleDeleteTask)
	api.Get("/tasks/:id/risk", s.handleTaskRisk)
	api.Get("/tasks/:id/blockers", s.handleTaskBlockers)
	api.Get("/chains", s.handleChains)
	api.Get("/summary", s.handleSummary)
	api.Post("/propagate", s.handlePropagate)
	api.Get("/events", s.handleListEvents)
}

func (s *Server) handleListTasks(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tasks":       s.engine.Tasks(),
		"diagnostics": s.engine.Diagnostics(),
	})
}

func (s *Server) handleGetTask(c fiber.Ctx) error {
	task, err := s.engine.Task(c.Params("id"))
	if errors.Is(err, engine.ErrTaskNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "task not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(task)
}

func (s *Server) handleReplaceTasks(c fiber.Ctx) error {
	var tasks []models.Task
	if err := c.Bind().JSON(&tasks); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	for i := range tasks {
		if tasks[i].ID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "task " + strconv.Itoa(i) + " is missing an id"})
		}
		if err := tasks[i].Validate(); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
	}

	result, err := s.engine.Replace(c.Context(), tasks, "api")
	if err != nil && !errors.Is(err, propagator.ErrPropagationDidNotConverge) {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	s.persist(c.Context())
	return c.JSON(result)
}

func (s *Server) handleUpsertTask(c fiber.Ctx) error {
	var task models.Task
	if err := c.Bind().JSON(&task); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	task.ID = c.Params("id")

	result, err := s.engine.UpsertTask(c.Context(), task)
	if errors.Is(err, engine.ErrInvalidTask) {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil && !errors.Is(err, propagator.ErrPropagationDidNotConverge) {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	s.persist(c.Context())
	return c.JSON(result)
}

func (s *Server) handleDeleteTask(c fiber.Ctx) error {
	_, err := s.engine.RemoveTask(c.Context(), c.Params("id"))
	if errors.Is(err, engine.ErrTaskNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "task not found"})
	}
	if err != nil && !errors.Is(err, propagator.ErrPropagationDidNotConverge) {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	s.persist(c.Context())
	return c.SendStatus(204)
}

func (s *Server) handleTaskRisk(c fiber.Ctx) error {
	assessment, err := s.engine.Risk(c.Params("id"))
	if errors.Is(err, engine.ErrTaskNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "task not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(assessment)
}

func (s *Server) handleTaskBlockers(c fiber.Ctx) error {
	id := c.Params("id")
	blockers, err := s.engine.Blockers(id)
	if errors.Is(err, engine.ErrTaskNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "task not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	recommendations, err := s.engine.Recommendations(id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"task_id":         id,
		"blockers":        blockers,
		"recommendations": recommendations,
	})
}

func (s *Server) handleChains(c fiber.Ctx) error {
	return c.JSON(s.engine.Chains())
}

func (s *Server) handleSummary(c fiber.Ctx) error {
	return c.JSON(s.engine.Summary())
}

func (s *Server) handlePropagate(c fiber.Ctx) error {
	result, err := s.engine.Propagate(c.Context())
	if err != nil && !errors.Is(err, propagator.ErrPropagationDidNotConverge) {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	s.persist(c.Context())
	return c.JSON(result)
}

func (s *Server) handleListEvents(c fiber.Ctx) error {
	if s.events == nil {
		return c.Status(404).JSON(fiber.Map{"error": "event log not enabled"})
	}

	q := db.EventQuery{Cursor: c.Query("cursor")}
	if v := c.Query("type"); v != "" {
		eventType := models.EventType(v)
		q.Type = &eventType
	}
	if v := c.Query("entity_id"); v != "" {
		q.EntityID = &v
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}

	page, err := s.events.Query(c.Context(), q)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"events":      page.Events,
		"next_cursor": page.NextCursor,
	})
}

// persist mirrors the engine's collection into the snapshot store.
// Serve-mode durability is best effort; a failed write is logged and
// the in-memory state stays authoritative.
func (s *Server) persist(ctx context.Context) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.ReplaceAll(ctx, s.engine.Tasks()); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist task snapshot")
	}
}
