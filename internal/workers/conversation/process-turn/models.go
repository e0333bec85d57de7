package processturn

import "travel-assistant/internal/models"

// Input is the job's variables.
type Input struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
}

// Output is what the job completes with.
type Output struct {
	ThreadID  string            `json:"threadId"`
	Reply     string            `json:"reply"`
	Citations []models.Citation `json:"citations"`
	Done      bool              `json:"done"`
}
