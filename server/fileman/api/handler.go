package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonauth "interview_server/server/common/auth"
	commonlog "interview_server/server/common/log"
	"interview_server/server/common/middleware"
	"interview_server/server/common/transport/httpresp"
	"interview_server/server/fileman/domain"
	"interview_server/server/fileman/service"
	userdomain "interview_server/server/userhub/domain"
)

type Handler struct {
	files *service.FileService
	hub   *service.Hub
	auth  *commonauth.Service
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewHandler(files *service.FileService, hub *service.Hub, auth *commonauth.Service) *Handler {
	return &Handler{files: files, hub: hub, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/files/upload", middleware.RequireRoles(string(userdomain.RoleInterviewee)), h.upload)
		api.GET("/files", h.list)
		api.GET("/files/stats", h.stats)
		api.GET("/files/events/ws", h.eventsWS)
		api.GET("/files/download/:id", h.download)
		api.GET("/files/preview/:id", h.preview)
		api.GET("/files/:id", h.get)
		api.PUT("/files/:id", h.update)
		api.DELETE("/files/:id", h.remove)
		api.POST("/files/:id/share", h.share)
		api.DELETE("/files/:id/share/:userId", h.unshare)
		api.POST("/files/:id/analyze", h.analyze)
	}
}

type uploadedFileResponse struct {
	ID             string              `json:"id"`
	BinaryObjectID string              `json:"binary_object_id"`
	OriginalName   string              `json:"original_name"`
	SizeBytes      int64               `json:"size_bytes"`
	Category       domain.FileCategory `json:"category"`
	DownloadURL    string              `json:"download_url"`
	PreviewURL     string              `json:"preview_url"`
}

func (h *Handler) upload(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("multipart form is required"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("at least one file is required"))
		return
	}

	inputs := make([]service.UploadInput, 0, len(headers))
	for _, header := range headers {
		f, openErr := header.Open()
		if openErr != nil {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(fmt.Sprintf("open uploaded file %q: %v", header.Filename, openErr)))
			return
		}
		defer func() { _ = f.Close() }()
		inputs = append(inputs, service.UploadInput{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      f,
		})
	}

	opts := service.UploadOptions{
		Category:    domain.FileCategory(strings.TrimSpace(c.PostForm("category"))),
		Description: strings.TrimSpace(c.PostForm("description")),
		Tags:        splitTags(c.PostFormArray("tags")),
	}

	report, err := h.files.Upload(c.Request.Context(), actor.ID, inputs, opts)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	files := make([]uploadedFileResponse, 0, len(report.Accepted))
	for _, rec := range report.Accepted {
		files = append(files, uploadedFileResponse{
			ID:             rec.ID,
			BinaryObjectID: rec.BinaryObjectID,
			OriginalName:   rec.OriginalName,
			SizeBytes:      rec.SizeBytes,
			Category:       rec.Category,
			DownloadURL:    "/api/v1/files/download/" + rec.ID,
			PreviewURL:     "/api/v1/files/preview/" + rec.ID,
		})
	}
	body := gin.H{
		"files":    files,
		"rejected": report.Rejected,
		"message":  fmt.Sprintf("%d of %d files uploaded", report.Succeeded, report.Attempted),
	}

	status := http.StatusCreated
	if report.Succeeded == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, body)
}

func (h *Handler) list(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	category := domain.FileCategory(strings.TrimSpace(c.Query("category")))

	items, total, err := h.files.List(c.Request.Context(), actor.ID, category, page, limit)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": items, "total": total, "page": page, "limit": limit})
}

func (h *Handler) get(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	rec, err := h.files.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) download(c *gin.Context) {
	h.stream(c, true)
}

func (h *Handler) preview(c *gin.Context) {
	h.stream(c, false)
}

// stream pipes the binary object straight to the client. Bytes are never
// buffered whole; the download counter moves only after the last byte went
// out, so aborted transfers stay uncounted.
func (h *Handler) stream(c *gin.Context, attachment bool) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}

	var stream *service.DownloadStream
	if attachment {
		stream, err = h.files.OpenDownload(c.Request.Context(), actor, c.Param("id"))
	} else {
		stream, err = h.files.OpenPreview(c.Request.Context(), actor, c.Param("id"))
	}
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer func() { _ = stream.Close() }()

	rec := stream.Record
	c.Header("Content-Type", rec.ContentType)
	c.Header("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	if attachment {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))
	} else {
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.OriginalName))
	}
	c.Status(http.StatusOK)

	if _, copyErr := io.Copy(c.Writer, stream.Body); copyErr != nil {
		commonlog.Debugf("stream of file %s interrupted: %v", rec.ID, copyErr)
		return
	}
	if !attachment {
		return
	}
	// The client may disconnect right after the final byte; the completed
	// download still counts, so the increment must not ride on request ctx.
	if err := stream.Complete(context.WithoutCancel(c.Request.Context())); err != nil {
		commonlog.Errorf("increment download count for file %s: %v", rec.ID, err)
	}
}

func (h *Handler) update(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var patch domain.FileRecordPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	rec, err := h.files.Update(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) remove(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	if err := h.files.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) share(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		UserID     string `json:"user_id" binding:"required"`
		Permission string `json:"permission" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	err = h.files.Share(c.Request.Context(), actor, c.Param("id"), req.UserID, domain.SharePermission(req.Permission))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) unshare(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	if err := h.files.Unshare(c.Request.Context(), actor, c.Param("id"), c.Param("userId")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) analyze(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	analysis, degraded, err := h.files.Analyze(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": !degraded, "analysis": analysis})
}

func (h *Handler) stats(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	global := c.Query("scope") == "global"
	stats, err := h.files.Stats(c.Request.Context(), actor, global)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *Handler) eventsWS(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("websocket upgrade for user %s: %v", actor.ID, err)
		return
	}

	client := h.hub.Register(actor.ID, conn)
	defer func() {
		h.hub.Unregister(client)
		_ = conn.Close()
	}()

	// Read loop only drains control frames and detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, httpresp.NewCodedErrorResponse(verr.Code, verr.Message))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFoundOrDenied))
	case errors.Is(err, domain.ErrBlobMissing):
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse("file content is no longer available"))
	case errors.Is(err, domain.ErrPreviewNotAllowed):
		c.JSON(http.StatusBadRequest, httpresp.NewCodedErrorResponse("NotPreviewable", err.Error()))
	case errors.Is(err, domain.ErrShareTargetMissing):
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
	case errors.Is(err, domain.ErrConsistency):
		commonlog.Errorf("consistency failure: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
	}
}

func actorFromContext(c *gin.Context) (service.Actor, error) {
	rawUserID, ok := c.Get("auth_user_id")
	if !ok {
		return service.Actor{}, http.ErrNoCookie
	}
	userID, ok := rawUserID.(string)
	if !ok || userID == "" {
		return service.Actor{}, http.ErrNoCookie
	}
	role, _ := c.Get("auth_role")
	roleStr, _ := role.(string)
	return service.Actor{ID: userID, Role: roleStr}, nil
}

func splitTags(values []string) []string {
	tags := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
	}
	return tags
}
