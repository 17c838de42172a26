package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 100

type historyQuery struct {
	Limit int `form:"limit" binding:"gte=0,lte=1000"`
}

// ListTrash lists trash entries visible to the caller
func (h *Handlers) ListTrash(c *gin.Context) {
	entries, err := h.fs.ListTrash(caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// RestoreTrash moves a trash entry back to where it was deleted from
func (h *Handlers) RestoreTrash(c *gin.Context) {
	res, err := h.fs.Restore(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PurgeTrash permanently removes a trash entry
func (h *Handlers) PurgeTrash(c *gin.Context) {
	res, err := h.fs.PurgeTrash(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// History returns the caller's most recent operations
func (h *Handlers) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "limit must be between 0 and 1000", err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultHistoryLimit
	}

	records, err := h.fs.History(caller(c), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}
