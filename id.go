package greenlight

import "go.jetify.com/typeid"

// NewExecutionID returns a new unique execution identifier
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewTaskID returns a new unique task identifier
func NewTaskID() string {
	id, err := typeid.WithPrefix("task")
	if err != nil {
		panic(err)
	}
	return id.String()
}
