package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tealeaf2/taskgantt/internal/chain"
	"github.com/tealeaf2/taskgantt/internal/db"
	"github.com/tealeaf2/taskgantt/internal/engine"
	"github.com/tealeaf2/taskgantt/internal/models"
	"github.com/tealeaf2/taskgantt/internal/propagator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Options{Engine: engine.New(nil, nil)})
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if _, err := database.MigrateUp(context.Background()); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return database
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func familyTasks() []models.Task {
	return []models.Task{
		{ID: "root", Name: "Release", Status: models.StatusTodo},
		{ID: "a1", Name: "Build", ParentID: "root", Status: models.StatusTodo},
		{ID: "a2", Name: "Sign-off", ParentID: "root", Status: models.StatusBlocked},
	}
}

func TestServerListTasksEmpty(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, s, http.MethodGet, "/api/tasks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Tasks []models.Task `json:"tasks"`
	}
	decodeBody(t, resp, &body)
	if len(body.Tasks) != 0 {
		t.Fatalf("tasks = %d, want 0", len(body.Tasks))
	}
}

func TestServerReplaceTasksPropagates(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result propagator.Result
	decodeBody(t, resp, &result)
	if !result.Converged {
		t.Fatal("expected propagation to converge")
	}
	if !result.Changed {
		t.Fatal("expected the blocked child to change the root")
	}

	resp = doRequest(t, s, http.MethodGet, "/api/tasks/root", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var root models.Task
	decodeBody(t, resp, &root)
	if root.Status != models.StatusBlocked {
		t.Fatalf("root status = %s, want blocked", root.Status)
	}
}

func TestServerGetTaskNotFound(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, s, http.MethodGet, "/api/tasks/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerReplaceTasksRejectsInvalid(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, s, http.MethodPost, "/api/tasks", []models.Task{
		{ID: "bad", Status: models.Status("paused")},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status: status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, s, http.MethodPost, "/api/tasks", []models.Task{{Name: "no id"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing id: status = %d, want 400", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("POST /api/tasks: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want 400", resp.StatusCode)
	}
}

func TestServerUpsertTask(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	resp := doRequest(t, s, http.MethodPut, "/api/tasks/a2", models.Task{
		Name:     "Sign-off",
		ParentID: "root",
		Status:   models.StatusInProgress,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result propagator.Result
	decodeBody(t, resp, &result)
	if !result.Changed {
		t.Fatal("expected the edit to reach the root")
	}

	resp = doRequest(t, s, http.MethodGet, "/api/tasks/root", nil)
	var root models.Task
	decodeBody(t, resp, &root)
	if root.Status != models.StatusInProgress {
		t.Fatalf("root status = %s, want in-progress", root.Status)
	}
}

func TestServerUpsertTaskRejectsInvalid(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, s, http.MethodPut, "/api/tasks/bad", models.Task{
		Status: models.Status("paused"),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerDeleteTask(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	resp := doRequest(t, s, http.MethodDelete, "/api/tasks/a2", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, s, http.MethodGet, "/api/tasks/a2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete: status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, s, http.MethodDelete, "/api/tasks/a2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, s, http.MethodGet, "/api/tasks/root", nil)
	var root models.Task
	decodeBody(t, resp, &root)
	if root.Status != models.StatusTodo {
		t.Fatalf("root status = %s, want todo after blocked child removed", root.Status)
	}
}

func TestServerTaskRisk(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	resp := doRequest(t, s, http.MethodGet, "/api/tasks/a2/risk", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var assessment struct {
		TaskID string `json:"task_id"`
		Score  int    `json:"score"`
	}
	decodeBody(t, resp, &assessment)
	if assessment.TaskID != "a2" {
		t.Fatalf("task_id = %s, want a2", assessment.TaskID)
	}
	if assessment.Score <= 0 {
		t.Fatalf("score = %d, want > 0 for a blocked task", assessment.Score)
	}

	resp = doRequest(t, s, http.MethodGet, "/api/tasks/missing/risk", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: status = %d, want 404", resp.StatusCode)
	}
}

func TestServerTaskBlockers(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", []models.Task{
		{ID: "dep", Name: "Vendor work", Status: models.StatusBlocked},
		{ID: "feature", Name: "Feature", Depends: []string{"dep"}, Status: models.StatusTodo},
	})

	resp := doRequest(t, s, http.MethodGet, "/api/tasks/feature/blockers", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		TaskID          string           `json:"task_id"`
		Blockers        []map[string]any `json:"blockers"`
		Recommendations []map[string]any `json:"recommendations"`
	}
	decodeBody(t, resp, &body)
	if body.TaskID != "feature" {
		t.Fatalf("task_id = %s, want feature", body.TaskID)
	}
	if len(body.Blockers) != 1 {
		t.Fatalf("blockers = %d, want 1", len(body.Blockers))
	}
	if len(body.Recommendations) == 0 {
		t.Fatal("expected a recommendation for the blocked dependency")
	}

	resp = doRequest(t, s, http.MethodGet, "/api/tasks/missing/blockers", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: status = %d, want 404", resp.StatusCode)
	}
}

func TestServerChains(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", []models.Task{
		{ID: "x", Depends: []string{"y"}, Status: models.StatusTodo},
		{ID: "y", Depends: []string{"z"}, Status: models.StatusTodo},
		{ID: "z", Status: models.StatusTodo},
	})

	resp := doRequest(t, s, http.MethodGet, "/api/chains", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var analysis chain.Analysis
	decodeBody(t, resp, &analysis)
	if len(analysis.Chains) != 1 {
		t.Fatalf("chains = %d, want 1", len(analysis.Chains))
	}
	if got := analysis.Chains[0].IDs; len(got) != 3 || got[0] != "x" {
		t.Fatalf("chain = %v, want [x y z]", got)
	}
}

func TestServerSummary(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	resp := doRequest(t, s, http.MethodGet, "/api/summary", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var summary engine.Summary
	decodeBody(t, resp, &summary)
	if summary.TotalTasks != 3 {
		t.Fatalf("total_tasks = %d, want 3", summary.TotalTasks)
	}
}

func TestServerPropagate(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	resp := doRequest(t, s, http.MethodPost, "/api/propagate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result propagator.Result
	decodeBody(t, resp, &result)
	if !result.Converged {
		t.Fatal("expected propagation to converge")
	}
	if result.Changed {
		t.Fatal("expected a settled collection to stay unchanged")
	}
}

func TestServerEventsEndpoint(t *testing.T) {
	database := openTestDB(t)
	eventRepo := db.NewEventRepository(database)
	s := New(Options{
		Engine: engine.New(nil, eventRepo),
		Tasks:  db.NewTaskRepository(database),
		Events: eventRepo,
	})

	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	resp := doRequest(t, s, http.MethodGet, "/api/events?type=snapshot.replaced", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Events     []models.Event `json:"events"`
		NextCursor string         `json:"next_cursor"`
	}
	decodeBody(t, resp, &body)
	if len(body.Events) != 1 {
		t.Fatalf("events = %d, want 1 snapshot event", len(body.Events))
	}
	if body.Events[0].Type != models.EventTypeSnapshotReplaced {
		t.Fatalf("type = %s, want %s", body.Events[0].Type, models.EventTypeSnapshotReplaced)
	}
}

func TestServerEventsEndpointDisabled(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, s, http.MethodGet, "/api/events", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerPersistsEdits(t *testing.T) {
	database := openTestDB(t)
	taskRepo := db.NewTaskRepository(database)
	s := New(Options{
		Engine: engine.New(nil, nil),
		Tasks:  taskRepo,
	})

	doRequest(t, s, http.MethodPost, "/api/tasks", familyTasks())

	count, err := taskRepo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("persisted tasks = %d, want 3", count)
	}

	doRequest(t, s, http.MethodDelete, "/api/tasks/a2", nil)

	count, err = taskRepo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count after delete: %v", err)
	}
	if count != 2 {
		t.Fatalf("persisted tasks = %d, want 2 after delete", count)
	}

	stored, err := taskRepo.Get(context.Background(), "root")
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	if stored.Status != models.StatusTodo {
		t.Fatalf("stored root status = %s, want the propagated todo", stored.Status)
	}
}
