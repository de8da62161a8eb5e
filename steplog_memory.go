package greenlight

import (
	"context"
	"sync"
)

// MemoryStepLogger is an in-memory StepLogger.
type MemoryStepLogger struct {
	entries map[string][]*StepLogEntry
	mutex   sync.Mutex
}

func NewMemoryStepLogger() *MemoryStepLogger {
	return &MemoryStepLogger{entries: map[string][]*StepLogEntry{}}
}

func (l *MemoryStepLogger) LogStep(ctx context.Context, entry *StepLogEntry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries[entry.ExecutionID] = append(l.entries[entry.ExecutionID], entry)
	return nil
}

func (l *MemoryStepLogger) StepHistory(ctx context.Context, executionID string) ([]*StepLogEntry, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	history := l.entries[executionID]
	copied := make([]*StepLogEntry, len(history))
	copy(copied, history)
	return copied, nil
}

// NullStepLogger is a no-op implementation of StepLogger.
type NullStepLogger struct{}

func NewNullStepLogger() *NullStepLogger {
	return &NullStepLogger{}
}

func (l *NullStepLogger) LogStep(ctx context.Context, entry *StepLogEntry) error {
	return nil
}

func (l *NullStepLogger) StepHistory(ctx context.Context, executionID string) ([]*StepLogEntry, error) {
	return nil, nil
}
