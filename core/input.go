package core

// SubmitInput is the request body every transport accepts for a new task.
type SubmitInput struct {
	// Goal is the free-text objective the pipeline should accomplish.
	Goal string `json:"goal"`
}

// SubmitOutput acknowledges a submitted task.
// Status is always StatusQueued at submission time.
type SubmitOutput struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
}
