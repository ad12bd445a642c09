package quest

import "fmt"

// NotFoundError reports a missing quest or step. It matches ErrQuestNotFound
// or ErrStepNotFound under errors.Is.
type NotFoundError struct {
	// What is "quest" or "step".
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.What == "step" {
		return fmt.Sprintf("step with id %s not found", e.ID)
	}
	return fmt.Sprintf("%s not found: %s", e.What, e.ID)
}

// Is lets errors.Is match the package sentinels.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrStepNotFound:
		return e.What == "step"
	case ErrQuestNotFound:
		return e.What == "quest"
	}
	return false
}

func questNotFound(id string) error {
	return &NotFoundError{What: "quest", ID: id}
}

func stepNotFound(id string) error {
	return &NotFoundError{What: "step", ID: id}
}
