package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ctcadmin/ctc-admin-api/internal/service"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
	"github.com/ctcadmin/ctc-admin-api/pkg/response"
)

// CertificateHandler exposes certificate issuance and verification.
type CertificateHandler struct {
	certs *service.CertificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certs *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certs: certs}
}

// Issue godoc
// @Summary Issue a certificate for an eligible enrollment
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.IssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req service.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cert, err := h.certs.Issue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, cert, nil)
}

// IssueBulk godoc
// @Summary Issue certificates of one type across a course
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.BulkIssueRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /certificates/bulk [post]
func (h *CertificateHandler) IssueBulk(c *gin.Context) {
	var req service.BulkIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.certs.IssueBulk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// VerifyCode godoc
// @Summary Verify a certificate by its printed code
// @Tags Certificates
// @Produce json
// @Param code path string true "Verification code"
// @Success 200 {object} response.Envelope
// @Router /certificates/verify/{code} [get]
func (h *CertificateHandler) VerifyCode(c *gin.Context) {
	verification, err := h.certs.VerifyCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verification, nil)
}
