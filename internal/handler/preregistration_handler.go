package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	"github.com/ctcadmin/ctc-admin-api/internal/service"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
	"github.com/ctcadmin/ctc-admin-api/pkg/response"
)

// PreRegistrationHandler exposes pre-registration review endpoints.
type PreRegistrationHandler struct {
	preRegs *service.PreRegistrationService
}

// NewPreRegistrationHandler constructs PreRegistrationHandler.
func NewPreRegistrationHandler(preRegs *service.PreRegistrationService) *PreRegistrationHandler {
	return &PreRegistrationHandler{preRegs: preRegs}
}

// List godoc
// @Summary List pre-registrations
// @Tags Pre-registrations
// @Produce json
// @Param participantId query string false "Filter by participant"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations [get]
func (h *PreRegistrationHandler) List(c *gin.Context) {
	var filter models.PreRegistrationFilter
	filter.ParticipantID = c.Query("participantId")
	filter.CourseID = c.Query("courseId")
	filter.Status = models.PreRegistrationStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	preRegs, pagination, err := h.preRegs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preRegs, pagination)
}

// Get godoc
// @Summary Get a pre-registration
// @Tags Pre-registrations
// @Produce json
// @Param id path string true "Pre-registration ID"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations/{id} [get]
func (h *PreRegistrationHandler) Get(c *gin.Context) {
	detail, err := h.preRegs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Approve godoc
// @Summary Approve a pending pre-registration
// @Tags Pre-registrations
// @Accept json
// @Produce json
// @Param id path string true "Pre-registration ID"
// @Param payload body service.ApproveRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations/{id}/approve [put]
func (h *PreRegistrationHandler) Approve(c *gin.Context) {
	var req service.ApproveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	detail, err := h.preRegs.Approve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reject godoc
// @Summary Reject a pending pre-registration
// @Tags Pre-registrations
// @Accept json
// @Produce json
// @Param id path string true "Pre-registration ID"
// @Param payload body service.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations/{id}/reject [put]
func (h *PreRegistrationHandler) Reject(c *gin.Context) {
	var req service.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.preRegs.Reject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Revert godoc
// @Summary Revert an approved pre-registration to pending
// @Tags Pre-registrations
// @Produce json
// @Param id path string true "Pre-registration ID"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations/{id}/revert [put]
func (h *PreRegistrationHandler) Revert(c *gin.Context) {
	detail, err := h.preRegs.RevertToPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ApproveBatch godoc
// @Summary Approve pre-registrations best-effort
// @Tags Pre-registrations
// @Accept json
// @Produce json
// @Param payload body service.BatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations/batch/approve [post]
func (h *PreRegistrationHandler) ApproveBatch(c *gin.Context) {
	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.preRegs.ApproveBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RejectBatch godoc
// @Summary Reject pre-registrations best-effort
// @Tags Pre-registrations
// @Accept json
// @Produce json
// @Param payload body service.BatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /pre-registrations/batch/reject [post]
func (h *PreRegistrationHandler) RejectBatch(c *gin.Context) {
	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.preRegs.RejectBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
