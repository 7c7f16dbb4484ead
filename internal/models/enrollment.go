package models

import "time"

// EnrollmentStatus represents the lifecycle of an official enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Valid reports whether s is a known enrollment status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusApproved, EnrollmentStatusFailed, EnrollmentStatusWithdrawn:
		return true
	}
	return false
}

// Enrollment is the official, seat-consuming registration created from an
// approved and paid pre-registration. Unique per pre-registration and per
// (participant, course).
type Enrollment struct {
	ID                string           `db:"id" json:"id"`
	ParticipantID     string           `db:"participant_id" json:"participant_id"`
	CourseID          string           `db:"course_id" json:"course_id"`
	PreRegistrationID string           `db:"pre_registration_id" json:"pre_registration_id"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	FinalGrade        *float64         `db:"final_grade" json:"final_grade,omitempty"`
	Observations      *string          `db:"observations" json:"observations,omitempty"`
	WithdrawalReason  *string          `db:"withdrawal_reason" json:"withdrawal_reason,omitempty"`
	EnrolledAt        time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with participant and course info.
type EnrollmentDetail struct {
	Enrollment
	ParticipantName string `db:"participant_name" json:"participant_name"`
	CourseName      string `db:"course_name" json:"course_name"`
	CourseCode      string `db:"course_code" json:"course_code"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ParticipantID string
	CourseID      string
	Status        EnrollmentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
