package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/filesystem"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead is the slack allowed above MaxUploadSize for the
// multipart envelope and the path field.
const multipartOverhead = 1 << 20

type listQuery struct {
	Path      string `form:"path"`
	Query     string `form:"q"`
	Glob      string `form:"glob"`
	Recursive bool   `form:"recursive"`
	Offset    int    `form:"offset" binding:"gte=0"`
	Limit     int    `form:"limit" binding:"gte=0"`
}

type pathQuery struct {
	Path   string `form:"path"`
	Format string `form:"format"`
}

// List returns the entries of a folder, optionally filtered or searched
func (h *Handlers) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid listing parameters", err.Error())
		return
	}

	resp, err := h.fs.List(c.Request.Context(), caller(c), filesystem.ListRequest{
		Path:      q.Path,
		Query:     q.Query,
		Glob:      q.Glob,
		Recursive: q.Recursive,
		Offset:    q.Offset,
		Limit:     q.Limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Info describes a single entry
func (h *Handlers) Info(c *gin.Context) {
	details, err := h.fs.Info(c.Request.Context(), caller(c), c.Query("path"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// Exists reports whether a path is present
func (h *Handlers) Exists(c *gin.Context) {
	ok, err := h.fs.Exists(c.Request.Context(), caller(c), c.Query("path"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": ok})
}

// CreateFolder creates a folder inside path
func (h *Handlers) CreateFolder(c *gin.Context) {
	var req filesystem.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "folderName is required", err.Error())
		return
	}

	res, err := h.fs.CreateFolder(c.Request.Context(), caller(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Delete removes a file or folder
func (h *Handlers) Delete(c *gin.Context) {
	var req filesystem.DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "path is required", err.Error())
		return
	}

	res, err := h.fs.Delete(c.Request.Context(), caller(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upload stores the multipart file field inside the path field's folder
func (h *Handlers) Upload(c *gin.Context) {
	limit := h.fs.Config().MaxUploadSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, &filesystem.Error{
				Kind:     filesystem.KindValidation,
				Message:  fmt.Sprintf("upload exceeds the %d byte limit", limit),
				TooLarge: true,
			})
			return
		}
		h.badRequest(c, "multipart field \"file\" is required", err.Error())
		return
	}

	content, err := header.Open()
	if err != nil {
		h.badRequest(c, "unreadable upload", err.Error())
		return
	}
	defer content.Close()

	res, err := h.fs.Upload(c.Request.Context(), caller(c), filesystem.UploadRequest{
		Path:     c.PostForm("path"),
		Filename: header.Filename,
		Content:  content,
		Size:     header.Size,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Download streams a file, or a folder as an archive, as an attachment
func (h *Handlers) Download(c *gin.Context) {
	var q pathQuery
	_ = c.ShouldBindQuery(&q)

	d, err := h.fs.Download(c.Request.Context(), caller(c), filesystem.DownloadRequest{
		Path:   q.Path,
		Format: filesystem.ArchiveFormat(q.Format),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.stream(c, d, "attachment")
}

// View streams a file for display in the browser
func (h *Handlers) View(c *gin.Context) {
	d, err := h.fs.Open(c.Request.Context(), caller(c), c.Query("path"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.stream(c, d, "inline")
}

func (h *Handlers) stream(c *gin.Context, d *filesystem.Download, disposition string) {
	defer d.Close()

	header := c.Writer.Header()
	header.Set("Content-Type", d.ContentType)
	header.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": d.Name}))
	header.Set("X-Content-Type-Options", "nosniff")
	if !d.ModTime.IsZero() {
		header.Set("Last-Modified", d.ModTime.UTC().Format(http.TimeFormat))
	}
	if d.Size >= 0 {
		header.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	c.Status(http.StatusOK)

	n, err := d.Stream(c.Request.Context(), c.Writer)
	if err != nil {
		// Headers are gone; the client sees a truncated body.
		h.log(c).Warn("download interrupted",
			zap.String("name", d.Name),
			zap.Int64("bytes", n),
			zap.Error(err))
		_ = c.Error(err)
	}
}
