package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CTC Admin API",
        "description": "Enrollment lifecycle and seat allocation for the technical training center",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Staff authentication"},
        {"name": "Courses", "description": "Course catalog and seat availability"},
        {"name": "Pre-registrations", "description": "Pre-registration review workflow"},
        {"name": "Payments", "description": "Payment recording and reconciliation"},
        {"name": "Enrollments", "description": "Official enrollment lifecycle"},
        {"name": "Certificates", "description": "Certificate issuance and verification"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a staff user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "parameters": [
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/availability": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get seat availability snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/deactivate": {
            "put": {
                "tags": ["Courses"],
                "summary": "Deactivate a course with no active enrollments",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course still has active enrollments"}
                }
            }
        },
        "/pre-registrations": {
            "get": {
                "tags": ["Pre-registrations"],
                "summary": "List pre-registrations",
                "parameters": [
                    {"name": "participantId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pre-registrations/{id}": {
            "get": {
                "tags": ["Pre-registrations"],
                "summary": "Get pre-registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pre-registrations/{id}/approve": {
            "put": {
                "tags": ["Pre-registrations"],
                "summary": "Approve a pending pre-registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ApproveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not pending, course full or already started"}
                }
            }
        },
        "/pre-registrations/{id}/reject": {
            "put": {
                "tags": ["Pre-registrations"],
                "summary": "Reject a pending pre-registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pre-registrations/{id}/revert": {
            "put": {
                "tags": ["Pre-registrations"],
                "summary": "Revert an approved pre-registration to pending",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Enrollment already exists"}
                }
            }
        },
        "/pre-registrations/batch/approve": {
            "post": {
                "tags": ["Pre-registrations"],
                "summary": "Approve pre-registrations best-effort",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pre-registrations/batch/reject": {
            "post": {
                "tags": ["Pre-registrations"],
                "summary": "Reject pre-registrations best-effort",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments": {
            "post": {
                "tags": ["Payments"],
                "summary": "Record a payment for an approved pre-registration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordPaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already paid or duplicate receipt"}
                }
            }
        },
        "/payments/{id}": {
            "get": {
                "tags": ["Payments"],
                "summary": "Get payment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Payments"],
                "summary": "Edit a payment before promotion",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Payment immutable once enrolled"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "participantId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/promote": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Promote an approved, paid pre-registration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PromoteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not approved, unpaid, duplicate or course full"}
                }
            }
        },
        "/enrollments/batch/promote": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Promote pre-registrations best-effort",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PromoteBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/grade": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Record the final grade",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Withdrawn enrollments cannot be graded"}
                }
            }
        },
        "/enrollments/{id}/withdraw": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Withdraw an enrollment, releasing its seat",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WithdrawRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/reactivate": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Reactivate a withdrawn enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReactivateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course full or not withdrawn"}
                }
            }
        },
        "/certificates": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Issue a certificate for an eligible enrollment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already certified or not eligible"}
                }
            }
        },
        "/certificates/bulk": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Issue certificates across a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkIssueRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/verify/{code}": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Verify a certificate by its printed code",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown code"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "ApproveRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "RejectRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "BatchRequest": {
            "type": "object",
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "notes": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["ids"]
        },
        "RecordPaymentRequest": {
            "type": "object",
            "properties": {
                "pre_registration_id": {"type": "string"},
                "amount": {"type": "number"},
                "receipt_number": {"type": "string"},
                "paid_at": {"type": "string"}
            },
            "required": ["pre_registration_id", "amount", "receipt_number"]
        },
        "EditPaymentRequest": {
            "type": "object",
            "properties": {
                "amount": {"type": "number"},
                "receipt_number": {"type": "string"},
                "paid_at": {"type": "string"}
            },
            "required": ["amount", "receipt_number"]
        },
        "PromoteRequest": {
            "type": "object",
            "properties": {
                "pre_registration_id": {"type": "string"},
                "observations": {"type": "string"}
            },
            "required": ["pre_registration_id"]
        },
        "PromoteBatchRequest": {
            "type": "object",
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "observations": {"type": "string"}
            },
            "required": ["ids"]
        },
        "GradeRequest": {
            "type": "object",
            "properties": {
                "grade": {"type": "number"}
            },
            "required": ["grade"]
        },
        "WithdrawRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "ReactivateRequest": {
            "type": "object",
            "properties": {
                "target_status": {"type": "string"}
            },
            "required": ["target_status"]
        },
        "IssueRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {"type": "string"},
                "type": {"type": "string", "enum": ["PARTICIPATION", "APPROVAL", "HONOR_MENTION"]}
            },
            "required": ["enrollment_id", "type"]
        },
        "BulkIssueRequest": {
            "type": "object",
            "properties": {
                "course_id": {"type": "string"},
                "type": {"type": "string", "enum": ["PARTICIPATION", "APPROVAL", "HONOR_MENTION"]}
            },
            "required": ["course_id", "type"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
