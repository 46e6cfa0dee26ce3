package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carebook/booking-api/internal/handler"
	"github.com/carebook/booking-api/internal/middleware"
	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/service/appointment"
)

type Handler struct {
	service   *appointment.Service
	adminOnly gin.HandlerFunc
}

func NewHandler(service *appointment.Service, adminOnly gin.HandlerFunc) *Handler {
	return &Handler{service: service, adminOnly: adminOnly}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.PATCH("/:id/reschedule", h.RescheduleAppointment)
		appointments.PATCH("/:id/notes", h.UpdateNotes)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.PATCH("/:id/payment", h.adminOnly, h.MarkPaid)
		appointments.PATCH("/:id/refund", h.adminOnly, h.ProcessRefund)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	// Patients book for themselves; the id in the payload is not trusted.
	if caller.Role == model.RolePatient {
		req.PatientID = caller.ID
	}

	appt, err := h.service.CreateAppointment(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(appt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	detail, err := h.service.GetAppointment(c.Request.Context(), id, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(detail))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}

	filters := &model.AppointmentFilters{}
	if status := c.Query("status"); status != "" {
		filters.Status = model.AppointmentStatus(status)
	}
	if date := c.Query("date_from"); date != "" {
		parsed, err := model.ParseDate(date)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date_from"))
			return
		}
		filters.DateFrom = parsed
	}
	if date := c.Query("date_to"); date != "" {
		parsed, err := model.ParseDate(date)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date_to"))
			return
		}
		filters.DateTo = parsed
	}
	if caller.Role == model.RoleAdmin {
		if id := c.Query("provider_id"); id != "" {
			providerID, err := uuid.Parse(id)
			if err != nil {
				c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid provider_id"))
				return
			}
			filters.ProviderID = providerID
		}
		if id := c.Query("patient_id"); id != "" {
			patientID, err := uuid.Parse(id)
			if err != nil {
				c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient_id"))
				return
			}
			filters.PatientID = patientID
		}
	}

	appointments, err := h.service.ListAppointments(c.Request.Context(), filters, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appointments))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, req.Reason, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.RescheduleAppointment(c.Request.Context(), id, &req, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) UpdateNotes(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	var req model.UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.UpdateNotes(c.Request.Context(), id, &req, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	var req model.CancelAppointmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	if _, err := h.service.CancelAppointment(c.Request.Context(), id, req.Reason, caller); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) MarkPaid(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	appt, err := h.service.MarkPaid(c.Request.Context(), id, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) ProcessRefund(c *gin.Context) {
	caller, id, ok := h.callerAndID(c)
	if !ok {
		return
	}

	var req model.ProcessRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.ProcessRefund(c.Request.Context(), id, &req, caller)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) callerAndID(c *gin.Context) (*model.Caller, uuid.UUID, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return nil, uuid.Nil, false
	}

	return caller, id, true
}
