package greenlight

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskStatus is the lifecycle status of a human-facing task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusRejected  TaskStatus = "rejected"
)

// Decision is the human reviewer's answer for a paused node.
type Decision struct {
	ActionID string `json:"action_id"`
	Feedback string `json:"feedback,omitempty"`
}

// Task is the human-facing work item created when a review node is reached.
// It is created pending, mutated exactly once by the decision handler, and
// never mutated again.
type Task struct {
	ID          string       `json:"id"`
	ExecutionID string       `json:"execution_id"`
	NodeID      string       `json:"node_id"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Actions     []TaskAction `json:"actions"`
	Result      *Decision    `json:"result,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt time.Time    `json:"completed_at,omitzero"`
}

// TaskService is the external task-management collaborator. It receives a
// task on pause and is expected to eventually deliver a decision back through
// the resume entry point.
type TaskService interface {
	// CreateTask registers a new pending task
	CreateTask(ctx context.Context, task *Task) error

	// CompleteTask records the reviewer's decision on a pending task
	CompleteTask(ctx context.Context, taskID string, decision *Decision) error

	// GetTask retrieves a task by id
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// ListTasks returns the tasks for an execution, oldest first
	ListTasks(ctx context.Context, executionID string) ([]*Task, error)
}

// MemoryTaskService is an in-memory TaskService.
type MemoryTaskService struct {
	tasks map[string]*Task
	order []string
	mutex sync.Mutex
}

func NewMemoryTaskService() *MemoryTaskService {
	return &MemoryTaskService{tasks: map[string]*Task{}}
}

func (s *MemoryTaskService) CreateTask(ctx context.Context, task *Task) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if task.ID == "" {
		return fmt.Errorf("task id required")
	}
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %q already exists", task.ID)
	}
	task.Status = TaskStatusPending
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	return nil
}

func (s *MemoryTaskService) CompleteTask(ctx context.Context, taskID string, decision *Decision) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskStatusPending {
		return fmt.Errorf("task %q already %s", taskID, task.Status)
	}
	task.Status = TaskStatusCompleted
	if decision.ActionID == "reject" {
		task.Status = TaskStatusRejected
	}
	task.Result = decision
	task.CompletedAt = time.Now()
	return nil
}

func (s *MemoryTaskService) GetTask(ctx context.Context, taskID string) (*Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	return task, nil
}

func (s *MemoryTaskService) ListTasks(ctx context.Context, executionID string) ([]*Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var tasks []*Task
	for _, id := range s.order {
		if task := s.tasks[id]; task.ExecutionID == executionID {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}
