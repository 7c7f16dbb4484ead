package models

import "time"

// PreRegistrationStatus represents the review state of a pre-registration.
type PreRegistrationStatus string

// Possible pre-registration statuses.
const (
	PreRegistrationStatusPending  PreRegistrationStatus = "PENDING"
	PreRegistrationStatusApproved PreRegistrationStatus = "APPROVED"
	PreRegistrationStatusRejected PreRegistrationStatus = "REJECTED"
)

// PreRegistration captures a participant's request to join a course,
// pending staff review. The (participant, course) pair is unique.
type PreRegistration struct {
	ID              string                `db:"id" json:"id"`
	ParticipantID   string                `db:"participant_id" json:"participant_id"`
	CourseID        string                `db:"course_id" json:"course_id"`
	Status          PreRegistrationStatus `db:"status" json:"status"`
	Notes           *string               `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time             `db:"created_at" json:"created_at"`
	StatusChangedAt *time.Time            `db:"status_changed_at" json:"status_changed_at,omitempty"`
}

// PreRegistrationDetail enriches PreRegistration with participant and
// course info for list and detail endpoints.
type PreRegistrationDetail struct {
	PreRegistration
	ParticipantName     string `db:"participant_name" json:"participant_name"`
	ParticipantDocument string `db:"participant_document" json:"participant_document"`
	CourseName          string `db:"course_name" json:"course_name"`
	CourseCode          string `db:"course_code" json:"course_code"`
}

// PreRegistrationFilter provides filters for listing pre-registrations.
type PreRegistrationFilter struct {
	ParticipantID string
	CourseID      string
	Status        PreRegistrationStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// BatchItemResult reports the outcome of one item of a best-effort batch.
type BatchItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BatchResult aggregates per-item outcomes of a best-effort batch. A
// failing item never rolls back its siblings.
type BatchResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []BatchItemResult `json:"items"`
}
