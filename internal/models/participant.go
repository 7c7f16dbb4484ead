package models

import "time"

// Participant is a person registering for courses. The participant type
// drives pricing through the price schedule.
type Participant struct {
	ID                string    `db:"id" json:"id"`
	FullName          string    `db:"full_name" json:"full_name"`
	DocumentID        string    `db:"document_id" json:"document_id"`
	Email             string    `db:"email" json:"email"`
	ParticipantTypeID string    `db:"participant_type_id" json:"participant_type_id"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ParticipantType classifies participants for pricing purposes.
type ParticipantType struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// PriceSchedule holds the active price for a (course, participant type)
// pair. At most one active row exists per pair.
type PriceSchedule struct {
	ID                string    `db:"id" json:"id"`
	CourseID          string    `db:"course_id" json:"course_id"`
	ParticipantTypeID string    `db:"participant_type_id" json:"participant_type_id"`
	Price             float64   `db:"price" json:"price"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
