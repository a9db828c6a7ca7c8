package store

import "time"

// Repository is a GitHub repository known to checkhub.
type Repository struct {
	ID            int64     `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"html_url"`
	DefaultBranch string    `json:"default_branch"`
	HookID        *int64    `json:"hook_id,omitempty"` // nullable
	UpdatedAt     time.Time `json:"updated_at"`
	Checks        []Check   `json:"checks"`
}

// Check is a check type enabled on a repository.
type Check struct {
	ID           int64     `json:"id"`
	RepositoryID int64     `json:"repository_id"`
	Type         string    `json:"type"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Delivery is a processed webhook delivery.
type Delivery struct {
	ID           string    `json:"id"`
	Event        string    `json:"event"`
	RepositoryID *int64    `json:"repository_id,omitempty"` // nullable
	Status       string    `json:"status"`                  // success, failed, rejected
	ErrorMessage *string   `json:"error_message,omitempty"` // nullable
	ReceivedAt   time.Time `json:"received_at"`
}
