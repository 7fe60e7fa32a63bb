package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/document/repository"
	"github.com/drilldocs/drilldocs/internal/document/service"
	"github.com/drilldocs/drilldocs/internal/export"
	"github.com/drilldocs/drilldocs/internal/importer"
	"github.com/drilldocs/drilldocs/pkg/logger"
)

const (
	// UserHeader names the author recorded in the activity log.
	UserHeader = "X-User"
	// NewDraftID addresses the draft slot of a document that has no id yet.
	NewDraftID = "new"

	keepAlive = 15 * time.Second
)

type handler struct {
	svc *service.Service
}

// RegisterDocumentRoutes mounts the document API on r.
func RegisterDocumentRoutes(r gin.IRouter, svc *service.Service) {
	h := &handler{svc: svc}
	api := r.Group("/api")

	api.GET("/documents", h.list)
	api.POST("/documents", h.create)
	api.GET("/documents/:id", h.get)
	api.PUT("/documents/:id", h.update)
	api.DELETE("/documents/:id", h.remove)
	api.GET("/documents/:id/view", h.view)
	api.GET("/documents/:id/revisions", h.revisions)
	api.POST("/documents/:id/revisions/:rev/restore", h.restore)
	api.GET("/documents/:id/export", h.export)

	api.GET("/drafts/:id", h.getDraft)
	api.PUT("/drafts/:id", h.putDraft)
	api.DELETE("/drafts/:id", h.deleteDraft)

	api.POST("/import", h.importFile)
	api.GET("/search", h.search)
	api.GET("/activity", h.activity)
	api.GET("/recent", h.recent)
	api.GET("/taxonomy", h.taxonomy)
	api.DELETE("/data", h.clear)
	api.GET("/events", h.events)
}

// fail maps domain errors to status codes. Anything unexpected is logged and
// reported as 500.
func fail(c *gin.Context, err error) {
	var ve *document.ValidationError
	switch {
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, document.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrImport):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func user(c *gin.Context) string { return c.GetHeader(UserHeader) }

func (h *handler) list(c *gin.Context) {
	f := service.Filter{
		EquipmentTag:  c.Query("equipment"),
		OperationsTag: c.Query("operations"),
		Category:      c.Query("category"),
	}
	f.FeaturedOnly, _ = strconv.ParseBool(c.Query("featured"))
	docs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *handler) create(c *gin.Context) {
	var doc document.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if doc.ID == "" {
		doc.ID = document.NewID()
	} else if existing, err := h.svc.Store().GetDocument(c.Request.Context(), doc.ID); err == nil && existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "document exists"})
		return
	}
	saved, err := h.svc.Save(c.Request.Context(), &doc, user(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *handler) get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) update(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	var doc document.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc.ID = id
	saved, err := h.svc.Save(c.Request.Context(), &doc, user(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *handler) remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), user(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) view(c *gin.Context) {
	v, err := h.svc.View(c.Request.Context(), c.Param("id"), c.Query("from"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handler) revisions(c *gin.Context) {
	revs, err := h.svc.Revisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if revs == nil {
		revs = []document.Revision{}
	}
	c.JSON(http.StatusOK, revs)
}

func (h *handler) restore(c *gin.Context) {
	d, err := h.svc.RestoreRevision(c.Request.Context(), c.Param("id"), c.Param("rev"), user(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) export(c *gin.Context) {
	f, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	archive, _ := strconv.ParseBool(c.Query("archive"))
	res, err := h.svc.Export(c.Request.Context(), c.Param("id"), f, archive)
	if err != nil {
		fail(c, err)
		return
	}
	if archive && res.ArchiveKey != "" {
		c.JSON(http.StatusOK, gin.H{"key": res.ArchiveKey, "url": res.URL, "filename": res.Filename})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

func draftID(c *gin.Context) string {
	if id := c.Param("id"); id != NewDraftID {
		return id
	}
	return ""
}

func (h *handler) getDraft(c *gin.Context) {
	d, err := h.svc.GetDraft(c.Request.Context(), draftID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) putDraft(c *gin.Context) {
	var d document.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(d.Sections) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "draft needs at least one section", "field": "sections"})
		return
	}
	if err := h.svc.SaveDraft(c.Request.Context(), draftID(c), d); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) deleteDraft(c *gin.Context) {
	if err := h.svc.DiscardDraft(c.Request.Context(), draftID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) importFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > importer.MaxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, importer.MaxSize+1))
	if err != nil {
		fail(c, err)
		return
	}
	split, _ := strconv.ParseBool(c.PostForm("split"))
	commit, _ := strconv.ParseBool(c.PostForm("commit"))
	doc, err := h.svc.Import(c.Request.Context(), fh.Filename, data, importer.Options{SplitByHeadings: split}, commit, user(c))
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if commit {
		status = http.StatusCreated
	}
	c.JSON(status, doc)
}

func (h *handler) search(c *gin.Context) {
	res, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) activity(c *gin.Context) {
	log, err := h.svc.Activity(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if log == nil {
		log = []document.Activity{}
	}
	c.JSON(http.StatusOK, log)
}

func (h *handler) recent(c *gin.Context) {
	docs, err := h.svc.RecentlyViewed(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *handler) taxonomy(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Taxonomy())
}

func (h *handler) clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// events streams store changes as server-sent events until the client goes
// away or the store closes.
func (h *handler) events(c *gin.Context) {
	ch, cancel := h.svc.Store().Subscribe()
	defer cancel()
	streamEvents(c, ch)
}

func streamEvents(c *gin.Context, ch <-chan repository.Event) {
	ctx := c.Request.Context()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Status(http.StatusOK)
	_, _ = io.WriteString(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("document", ev)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}
