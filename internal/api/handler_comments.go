package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/mw"
)

// ListComments handles GET /api/{equipment|sensors|alerts}/:id/comments.
func (h *Handler) ListComments(kind model.OwnerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		comments, err := h.store.ListComments(c.Request.Context(), kind, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, comments)
	}
}

type commentRequest struct {
	Body string `json:"body" binding:"required,max=2000"`
}

// CreateComment handles POST /api/{equipment|sensors|alerts}/:id/comments. The author is the
// authenticated caller.
func (h *Handler) CreateComment(kind model.OwnerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		comment := &model.Comment{
			OwnerKind: kind,
			OwnerID:   id,
			Author:    c.GetString(mw.ContextUser),
			Body:      req.Body,
			CreatedAt: h.clock.Now(),
		}
		if err := h.store.CreateComment(c.Request.Context(), comment); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}
