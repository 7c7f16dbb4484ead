package models

import "time"

// CertificateType distinguishes what a certificate attests.
type CertificateType string

// Possible certificate types.
const (
	CertificateTypeParticipation CertificateType = "PARTICIPATION"
	CertificateTypeApproval      CertificateType = "APPROVAL"
	CertificateTypeHonorMention  CertificateType = "HONOR_MENTION"
)

// Valid reports whether t is a known certificate type.
func (t CertificateType) Valid() bool {
	switch t {
	case CertificateTypeParticipation, CertificateTypeApproval, CertificateTypeHonorMention:
		return true
	}
	return false
}

// Certificate attests an enrollment outcome. The verification code is
// globally unique, generated once at creation and never reassigned.
type Certificate struct {
	ID               string          `db:"id" json:"id"`
	EnrollmentID     string          `db:"enrollment_id" json:"enrollment_id"`
	Type             CertificateType `db:"type" json:"type"`
	VerificationCode string          `db:"verification_code" json:"verification_code"`
	IssuedAt         time.Time       `db:"issued_at" json:"issued_at"`
}

// CertificateVerification is the public payload returned when a printed
// verification code is looked up.
type CertificateVerification struct {
	Certificate
	ParticipantName string           `db:"participant_name" json:"participant_name"`
	CourseName      string           `db:"course_name" json:"course_name"`
	CourseCode      string           `db:"course_code" json:"course_code"`
	EnrollmentState EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
}

// BulkIssueResult summarises a course-wide certificate issuance run.
// Ineligible enrollments are skipped, not errored.
type BulkIssueResult struct {
	Issued  int `json:"issued"`
	Skipped int `json:"skipped"`
}
