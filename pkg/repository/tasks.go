package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/platinummonkey/groundwork/pkg/apperr"
)

// TaskFilter narrows a task list
type TaskFilter struct {
	Status     string
	AssigneeID string
}

// TaskRepository reads and writes tasks of one project
type TaskRepository struct {
	t *table[Task]
}

func newTaskRepository(s scope) *TaskRepository {
	return &TaskRepository{t: newTable[Task](s, "tasks", "Task",
		"title", "description", "status", "priority", "assignee_id", "due_date", "completed_at")}
}

// FindMany lists tasks newest first
func (r *TaskRepository) FindMany(ctx context.Context, filter TaskFilter, page Page) ([]*Task, int64, error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.AssigneeID != "" {
		where = append(where, sq.Eq{"assignee_id": filter.AssigneeID})
	}
	return r.t.findMany(ctx, where, "created_at DESC", page)
}

// FindByID returns one task
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*Task, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a task
func (r *TaskRepository) Create(ctx context.Context, task *Task) error {
	if task.Status == "" {
		task.Status = TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = "MEDIUM"
	}
	_, err := r.t.insert(ctx, task)
	return err
}

// Update applies changes. Marking a task DONE stamps completed_at.
func (r *TaskRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*Task, error) {
	if status, ok := changes["status"].(string); ok {
		if status == TaskStatusDone {
			if _, set := changes["completed_at"]; !set {
				changes["completed_at"] = r.t.now()
			}
		} else {
			changes["completed_at"] = nil
		}
	}
	return r.t.update(ctx, id, changes)
}

// Delete removes one task
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

// BulkDeleteTasks removes every task in ids, or none of them. Ids missing from
// the project are reported together.
func (r *Repositories) BulkDeleteTasks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("No task ids given", map[string]string{"ids": "is required"})
	}

	var deleted int64
	err := r.Tx(ctx, func(tx *Repositories) error {
		found, err := tx.Tasks.t.existingIDs(ctx, ids)
		if err != nil {
			return err
		}
		if miss := missing(ids, found); len(miss) > 0 {
			return apperr.TasksNotFound(miss)
		}
		deleted, err = tx.Tasks.t.deleteWhere(ctx, sq.Eq{"id": ids})
		return err
	})
	return deleted, err
}
