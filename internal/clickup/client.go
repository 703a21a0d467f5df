// Package clickup fetches tasks from the ClickUp v2 API and maps them
// into the engine's task model.
package clickup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/tealeaf2/taskgantt/internal/config"
	"github.com/tealeaf2/taskgantt/internal/logging"
	"github.com/tealeaf2/taskgantt/internal/models"
)

// Client errors.
var (
	ErrMissingToken = errors.New("clickup api token is required")
	ErrMissingScope = errors.New("a team id or list id is required to fetch tasks")
)

const (
	defaultBaseURL = "https://api.clickup.com/api/v2"
	defaultTimeout = 30 * time.Second
)

// Client calls the ClickUp v2 API. Responses are parsed leniently with
// gjson; missing fields degrade to zero values instead of failing the
// fetch.
type Client struct {
	cfg    config.ClickUpConfig
	client *http.Client
	logger zerolog.Logger
}

// Team is a ClickUp workspace.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Space is a ClickUp space within a team.
type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Folder is a ClickUp folder within a space.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is a ClickUp list, foldered or folderless.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// New constructs a client with defaults applied.
func New(cfg config.ClickUpConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, ErrMissingToken
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.Component("clickup"),
	}, nil
}

// FetchTasks retrieves the configured scope: the team when a team id is
// set, the list when only a list id is set. With neither, the sole
// accessible team is used if there is exactly one.
func (c *Client) FetchTasks(ctx context.Context) ([]models.Task, error) {
	if c.cfg.TeamID != "" {
		return c.TeamTasks(ctx, c.cfg.TeamID)
	}
	if c.cfg.ListID != "" {
		return c.ListTasks(ctx, c.cfg.ListID)
	}

	teams, err := c.Teams(ctx)
	if err != nil {
		return nil, err
	}
	if len(teams) != 1 {
		return nil, fmt.Errorf("%w: found %d teams", ErrMissingScope, len(teams))
	}

	c.logger.Info().Str("team_id", teams[0].ID).Str("team", teams[0].Name).Msg("auto-selected the only team")
	return c.TeamTasks(ctx, teams[0].ID)
}

// Teams returns the workspaces the token can see.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	body, err := c.get(ctx, "/team", nil)
	if err != nil {
		return nil, err
	}

	var out []Team
	gjson.GetBytes(body, "teams").ForEach(func(_, item gjson.Result) bool {
		out = append(out, Team{ID: item.Get("id").String(), Name: item.Get("name").String()})
		return true
	})
	return out, nil
}

// Spaces returns the spaces of a team.
func (c *Client) Spaces(ctx context.Context, teamID string) ([]Space, error) {
	body, err := c.get(ctx, "/team/"+url.PathEscape(teamID)+"/space", nil)
	if err != nil {
		return nil, err
	}

	var out []Space
	gjson.GetBytes(body, "spaces").ForEach(func(_, item gjson.Result) bool {
		out = append(out, Space{ID: item.Get("id").String(), Name: item.Get("name").String()})
		return true
	})
	return out, nil
}

// Folders returns the folders of a space.
func (c *Client) Folders(ctx context.Context, spaceID string) ([]Folder, error) {
	body, err := c.get(ctx, "/space/"+url.PathEscape(spaceID)+"/folder", nil)
	if err != nil {
		return nil, err
	}

	var out []Folder
	gjson.GetBytes(body, "folders").ForEach(func(_, item gjson.Result) bool {
		out = append(out, Folder{ID: item.Get("id").String(), Name: item.Get("name").String()})
		return true
	})
	return out, nil
}

// Lists returns the lists of a folder.
func (c *Client) Lists(ctx context.Context, folderID string) ([]List, error) {
	return c.lists(ctx, "/folder/"+url.PathEscape(folderID)+"/list")
}

// FolderlessLists returns a space's lists that live outside folders.
func (c *Client) FolderlessLists(ctx context.Context, spaceID string) ([]List, error) {
	return c.lists(ctx, "/space/"+url.PathEscape(spaceID)+"/list")
}

func (c *Client) lists(ctx context.Context, path string) ([]List, error) {
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var out []List
	gjson.GetBytes(body, "lists").ForEach(func(_, item gjson.Result) bool {
		out = append(out, List{ID: item.Get("id").String(), Name: item.Get("name").String()})
		return true
	})
	return out, nil
}

// TeamTasks pages through every task of a team.
func (c *Client) TeamTasks(ctx context.Context, teamID string) ([]models.Task, error) {
	return c.pagedTasks(ctx, "/team/"+url.PathEscape(teamID)+"/task")
}

// ListTasks pages through every task of a list.
func (c *Client) ListTasks(ctx context.Context, listID string) ([]models.Task, error) {
	return c.pagedTasks(ctx, "/list/"+url.PathEscape(listID)+"/task")
}

// Task fetches a single task by id.
func (c *Client) Task(ctx context.Context, taskID string) (models.Task, error) {
	body, err := c.get(ctx, "/task/"+url.PathEscape(taskID), nil)
	if err != nil {
		return models.Task{}, err
	}
	return mapTask(gjson.ParseBytes(body)), nil
}

func (c *Client) pagedTasks(ctx context.Context, path string) ([]models.Task, error) {
	var out []models.Task
	for page := 0; ; page++ {
		params := url.Values{}
		params.Set("include_closed", strconv.FormatBool(c.cfg.IncludeClosed))
		params.Set("subtasks", strconv.FormatBool(c.cfg.IncludeSubtasks))
		params.Set("page", strconv.Itoa(page))

		body, err := c.get(ctx, path, params)
		if err != nil {
			return nil, err
		}

		tasks := gjson.GetBytes(body, "tasks")
		count := 0
		tasks.ForEach(func(_, item gjson.Result) bool {
			out = append(out, mapTask(item))
			count++
			return true
		})

		c.logger.Debug().Str("path", path).Int("page", page).Int("tasks", count).Msg("fetched task page")

		if count == 0 || gjson.GetBytes(body, "last_page").Bool() {
			break
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build clickup request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call clickup api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read clickup response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if snippet == "" {
			snippet = resp.Status
		}
		return nil, fmt.Errorf("clickup request failed (%s): %s", resp.Status, snippet)
	}

	return body, nil
}
