package clickup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tealeaf2/taskgantt/internal/config"
	"github.com/tealeaf2/taskgantt/internal/models"
)

func testConfig(baseURL string) config.ClickUpConfig {
	return config.ClickUpConfig{
		APIToken:        "pk_test_token",
		BaseURL:         baseURL,
		IncludeClosed:   true,
		IncludeSubtasks: true,
		Timeout:         5 * time.Second,
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(config.ClickUpConfig{}); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestClientTeamTasksPaginates(t *testing.T) {
	var pages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "pk_test_token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if r.URL.Path != "/team/9001/task" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("include_closed") != "true" || q.Get("subtasks") != "true" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}

		page := q.Get("page")
		pages = append(pages, page)
		switch page {
		case "0":
			fmt.Fprint(w, `{"tasks": [
				{"id": "t1", "name": "First", "status": {"status": "Open", "type": "open"}},
				{"id": "t2", "name": "Second", "status": {"status": "blocked", "type": "custom"}}
			], "last_page": false}`)
		case "1":
			fmt.Fprint(w, `{"tasks": [
				{"id": "t3", "name": "Third", "status": {"status": "Complete", "type": "closed"}}
			], "last_page": true}`)
		default:
			t.Errorf("unexpected page %q", page)
			fmt.Fprint(w, `{"tasks": []}`)
		}
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tasks, err := client.TeamTasks(context.Background(), "9001")
	if err != nil {
		t.Fatalf("TeamTasks: %v", err)
	}

	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks across pages, got %d", len(tasks))
	}
	if len(pages) != 2 {
		t.Errorf("expected 2 page requests, got %v", pages)
	}
	if tasks[0].Status != models.StatusTodo {
		t.Errorf("expected t1 todo, got %q", tasks[0].Status)
	}
	if tasks[1].Status != models.StatusBlocked {
		t.Errorf("expected t2 blocked, got %q", tasks[1].Status)
	}
	if tasks[2].Status != models.StatusDone {
		t.Errorf("expected t3 done, got %q", tasks[2].Status)
	}
}

func TestClientFetchTasksUsesConfiguredScope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list/L42/task" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"tasks": [{"id": "only", "status": {"status": "open", "type": "open"}}], "last_page": true}`)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.ListID = "L42"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tasks, err := client.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "only" {
		t.Errorf("unexpected tasks %v", tasks)
	}
}

func TestClientFetchTasksAutoSelectsOnlyTeam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/team":
			fmt.Fprint(w, `{"teams": [{"id": "solo", "name": "Solo Team"}]}`)
		case "/team/solo/task":
			fmt.Fprint(w, `{"tasks": [{"id": "a", "status": {"status": "open", "type": "open"}}], "last_page": true}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tasks, err := client.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "a" {
		t.Errorf("unexpected tasks %v", tasks)
	}
}

func TestClientFetchTasksNeedsScopeWithManyTeams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"teams": [{"id": "t1"}, {"id": "t2"}]}`)
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.FetchTasks(context.Background()); !errors.Is(err, ErrMissingScope) {
		t.Errorf("expected ErrMissingScope, got %v", err)
	}
}

func TestClientTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/task/abc123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"id": "abc123", "name": "Solo", "status": {"status": "in progress", "type": "custom"}}`)
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	task, err := client.Task(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if task.ID != "abc123" || task.Status != models.StatusInProgress {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestClientDiscovery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/team/9001/space":
			fmt.Fprint(w, `{"spaces": [{"id": "s1", "name": "Product"}]}`)
		case "/space/s1/folder":
			fmt.Fprint(w, `{"folders": [{"id": "f1", "name": "Roadmap"}]}`)
		case "/folder/f1/list":
			fmt.Fprint(w, `{"lists": [{"id": "l1", "name": "Q1"}]}`)
		case "/space/s1/list":
			fmt.Fprint(w, `{"lists": [{"id": "l2", "name": "Loose"}]}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	spaces, err := client.Spaces(ctx, "9001")
	if err != nil || len(spaces) != 1 || spaces[0].Name != "Product" {
		t.Errorf("Spaces: %v %v", spaces, err)
	}
	folders, err := client.Folders(ctx, "s1")
	if err != nil || len(folders) != 1 || folders[0].ID != "f1" {
		t.Errorf("Folders: %v %v", folders, err)
	}
	lists, err := client.Lists(ctx, "f1")
	if err != nil || len(lists) != 1 || lists[0].ID != "l1" {
		t.Errorf("Lists: %v %v", lists, err)
	}
	loose, err := client.FolderlessLists(ctx, "s1")
	if err != nil || len(loose) != 1 || loose[0].ID != "l2" {
		t.Errorf("FolderlessLists: %v %v", loose, err)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"err": "Token invalid", "ECODE": "OAUTH_025"}`)
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Teams(context.Background())
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Token invalid") {
		t.Errorf("expected body snippet in error, got %v", err)
	}
}
