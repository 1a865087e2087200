package model

import (
	"context"

	"github.com/google/uuid"
)

// Task is a unit of work executed by the serial task worker. Every
// state-changing entry point (chat command, reaction, sweep tick, rollover
// check) is wrapped in a Task so only one runs at a time.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// NewTask wraps fn in a Task with a fresh ID.
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return Task{ID: uuid.NewString(), Name: name, Run: fn}
}
