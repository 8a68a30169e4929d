package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

const systemPrompt = "You are a helpful calendar assistant. You manage the user's tasks " +
	"with the provided tools. Dates are plain YYYY-MM-DD strings. Be concise."

// Result is the outcome of one chat turn. CalendarUpdated is set when a
// tool call created, changed, or deleted a task, so the client can refresh.
type Result struct {
	Content         string
	CalendarUpdated bool
}

// Workflow wires a chat provider to the task repository: it injects the
// caller's current tasks as context, exposes the task tools, and executes
// the tool calls the model requests.
type Workflow struct {
	provider Provider
	tasks    database.TaskRepositoryInterface
	logger   *zap.Logger
}

// NewWorkflow creates a chat workflow.
func NewWorkflow(provider Provider, tasks database.TaskRepositoryInterface, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		provider: provider,
		tasks:    tasks,
		logger:   logger,
	}
}

// ProcessMessage runs one user turn end to end.
func (w *Workflow) ProcessMessage(ctx context.Context, user *models.User, message string, remember bool) (*Result, error) {
	exec := &toolSession{workflow: w, user: user}

	text, err := w.buildMessage(ctx, user.ID, message)
	if err != nil {
		return nil, err
	}

	content, err := w.provider.Chat(ctx, &ChatRequest{
		UserID:   user.ID,
		System:   systemPrompt,
		Text:     text,
		Remember: remember,
		Tools:    TaskTools(),
	}, exec.execute)
	if err != nil {
		return nil, err
	}

	return &Result{Content: content, CalendarUpdated: exec.mutated}, nil
}

// buildMessage appends the caller's current tasks so the model can answer
// questions without a list_tasks round trip.
func (w *Workflow) buildMessage(ctx context.Context, userID uuid.UUID, message string) (string, error) {
	tasks, err := w.tasks.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load tasks for context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(message)
	if len(tasks) == 0 {
		sb.WriteString("\n\nNo tasks yet.")
	} else {
		snapshot, err := json.Marshal(taskViews(tasks))
		if err != nil {
			return "", fmt.Errorf("encode task context: %w", err)
		}
		sb.WriteString("\n\nCurrent tasks: ")
		sb.Write(snapshot)
	}
	sb.WriteString("\n\nYou have access to tools to manage tasks. Use them as needed.")
	return sb.String(), nil
}

// TaskTools returns the tool definitions for task manipulation.
func TaskTools() []Tool {
	return []Tool{
		{
			Name:        "create_task",
			Description: "Create a new task",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"date":        map[string]any{"type": "string", "description": "YYYY-MM-DD, empty for undated"},
					"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "tag names"},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        "list_tasks",
			Description: "Retrieve all tasks",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "update_task",
			Description: "Update an existing task",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_id": map[string]any{"type": "string"},
					"updates": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title":       map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
							"date":        map[string]any{"type": "string"},
							"completed":   map[string]any{"type": "boolean"},
							"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
					},
				},
				"required": []string{"task_id", "updates"},
			},
		},
		{
			Name:        "delete_task",
			Description: "Delete a task by ID",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_id": map[string]any{"type": "string"},
				},
				"required": []string{"task_id"},
			},
		},
		{
			Name:        "complete_task",
			Description: "Mark a task as complete",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_id": map[string]any{"type": "string"},
				},
				"required": []string{"task_id"},
			},
		},
		{
			Name:        "analyze_tasks",
			Description: "Get summary statistics and insights about tasks",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}

// toolSession executes tool calls for one chat turn, tracking whether any
// of them mutated the calendar.
type toolSession struct {
	workflow *Workflow
	user     *models.User
	mutated  bool
}

func (s *toolSession) execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "create_task":
		return s.createTask(ctx, args)
	case "list_tasks":
		return s.listTasks(ctx)
	case "update_task":
		return s.updateTask(ctx, args)
	case "delete_task":
		return s.deleteTask(ctx, args)
	case "complete_task":
		return s.completeTask(ctx, args)
	case "analyze_tasks":
		return s.analyzeTasks(ctx)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

func (s *toolSession) createTask(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Date        string   `json:"date"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("create_task arguments: %w", err)
	}
	if params.Title == "" {
		return "", fmt.Errorf("create_task: title is required")
	}

	task := &models.Task{
		ID:          uuid.New(),
		UserID:      s.user.ID,
		Title:       params.Title,
		Description: params.Description,
		Date:        params.Date,
		Tags:        tagsByName(params.Tags),
	}
	if err := s.workflow.tasks.Create(ctx, task); err != nil {
		return "", fmt.Errorf("create_task: %w", err)
	}

	s.mutated = true
	return marshalResult(taskView(task))
}

func (s *toolSession) listTasks(ctx context.Context) (string, error) {
	tasks, err := s.workflow.tasks.GetByUserID(ctx, s.user.ID)
	if err != nil {
		return "", fmt.Errorf("list_tasks: %w", err)
	}
	return marshalResult(taskViews(tasks))
}

func (s *toolSession) updateTask(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		TaskID  string `json:"task_id"`
		Updates struct {
			Title       *string   `json:"title"`
			Description *string   `json:"description"`
			Date        *string   `json:"date"`
			Completed   *bool     `json:"completed"`
			Tags        *[]string `json:"tags"`
		} `json:"updates"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("update_task arguments: %w", err)
	}

	task, err := s.ownTask(ctx, params.TaskID)
	if err != nil {
		return "", fmt.Errorf("update_task: %w", err)
	}

	if params.Updates.Title != nil {
		task.Title = *params.Updates.Title
	}
	if params.Updates.Description != nil {
		task.Description = *params.Updates.Description
	}
	if params.Updates.Date != nil {
		task.Date = *params.Updates.Date
	}
	if params.Updates.Completed != nil {
		task.Completed = *params.Updates.Completed
	}
	if params.Updates.Tags != nil {
		task.Tags = tagsByName(*params.Updates.Tags)
	}

	if err := s.workflow.tasks.Update(ctx, task); err != nil {
		return "", fmt.Errorf("update_task: %w", err)
	}

	s.mutated = true
	return marshalResult(taskView(task))
}

func (s *toolSession) deleteTask(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("delete_task arguments: %w", err)
	}

	task, err := s.ownTask(ctx, params.TaskID)
	if err != nil {
		return "", fmt.Errorf("delete_task: %w", err)
	}
	if err := s.workflow.tasks.Delete(ctx, task.ID); err != nil {
		return "", fmt.Errorf("delete_task: %w", err)
	}

	s.mutated = true
	return `{"deleted":true}`, nil
}

func (s *toolSession) completeTask(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("complete_task arguments: %w", err)
	}

	task, err := s.ownTask(ctx, params.TaskID)
	if err != nil {
		return "", fmt.Errorf("complete_task: %w", err)
	}
	task.Completed = true
	if err := s.workflow.tasks.Update(ctx, task); err != nil {
		return "", fmt.Errorf("complete_task: %w", err)
	}

	s.mutated = true
	return marshalResult(taskView(task))
}

func (s *toolSession) analyzeTasks(ctx context.Context) (string, error) {
	tasks, err := s.workflow.tasks.GetByUserID(ctx, s.user.ID)
	if err != nil {
		return "", fmt.Errorf("analyze_tasks: %w", err)
	}

	completed := 0
	tagsCount := map[string]int{}
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
		for _, tag := range t.Tags {
			tagsCount[tag.Name]++
		}
	}

	return marshalResult(map[string]any{
		"total":             len(tasks),
		"completed":         completed,
		"pending":           len(tasks) - completed,
		"tags_distribution": tagsCount,
	})
}

// ownTask loads a task and verifies the caller owns it.
func (s *toolSession) ownTask(ctx context.Context, rawID string) (*models.Task, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid task_id %q", rawID)
	}
	task, err := s.workflow.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != s.user.ID {
		return nil, fmt.Errorf("task %s not found", rawID)
	}
	return task, nil
}

// taskSnapshot is the compact task shape fed to the model.
type taskSnapshot struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Completed   bool     `json:"completed"`
	Date        string   `json:"date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func taskView(t *models.Task) taskSnapshot {
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, tag.Name)
	}
	return taskSnapshot{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Date:        t.Date,
		Tags:        tags,
	}
}

func taskViews(tasks []*models.Task) []taskSnapshot {
	views := make([]taskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	return views
}

func tagsByName(names []string) []models.Tag {
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tags = append(tags, models.Tag{Name: name})
	}
	return tags
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
