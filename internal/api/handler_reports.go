package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maintenance-monitor-backend/internal/report"
)

type reportRequest struct {
	Type       string     `json:"tipo"`
	Start      *time.Time `json:"inicio"`
	End        *time.Time `json:"fin"`
	Recipients []string   `json:"destinatarios" binding:"omitempty,dive,email"`
}

func (r reportRequest) toRequest() (report.Request, error) {
	typ, err := report.ParseType(r.Type)
	if err != nil {
		return report.Request{}, err
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return report.Request{}, errors.New("fin must not be before inicio")
	}
	return report.Request{Type: typ, Start: r.Start, End: r.End, Recipients: r.Recipients}, nil
}

// SendReport handles POST /api/reports. The report is built and mailed in the background.
func (h *Handler) SendReport(c *gin.Context) {
	var body reportRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go func() {
		if _, err := h.reports.Send(h.background, req); err != nil {
			h.logger.Error("requested report failed", zap.String("type", string(req.Type)), zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"tipo": req.Type, "estado": "en_progreso"})
}

// PreviewReport handles GET /api/reports/preview?type=. It returns the aggregated report
// without sending it.
func (h *Handler) PreviewReport(c *gin.Context) {
	typ, err := report.ParseType(c.Query("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.builder.Build(c.Request.Context(), report.Request{Type: typ})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
