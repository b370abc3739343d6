// Package api exposes the importer over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Adda-Baaj/newsroom-bridge/internal/importer"
	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/mapping"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/storage"
)

// Service is the importer surface served by the API.
type Service interface {
	Kinds() []string
	Search(ctx context.Context, q importer.SearchQuery) (importer.Page, error)
	Preview(ctx context.Context, kind, itemID string) (content.Entity, error)
	Import(ctx context.Context, kind, itemID string) (importer.ImportResult, error)
	Records(ctx context.Context, kind string, limit int) ([]storage.Record, error)
}

type Server struct {
	svc Service
	log logger.Logger
}

func NewServer(svc Service, log logger.Logger) *Server {
	return &Server{svc: svc, log: logger.Ensure(log)}
}

// Handler returns a gin engine with all routes registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/kinds", s.kinds)
		v1.GET("/search", s.search)
		v1.GET("/items/:item_id/preview/:kind", s.preview)
		v1.POST("/items/:item_id/import/:kind", s.importItem)
		v1.GET("/records/:kind", s.records)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) kinds(c *gin.Context) {
	ok(c, s.svc.Kinds())
}

func (s *Server) search(c *gin.Context) {
	page, err := s.svc.Search(c.Request.Context(), importer.SearchQuery{
		Keywords:  c.Query("q"),
		Sort:      c.DefaultQuery("sort", importer.SortRelevance),
		PageToken: c.Query("page_token"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, page)
}

func (s *Server) preview(c *gin.Context) {
	kind, itemID, valid := pathArgs(c)
	if !valid {
		return
	}
	entity, err := s.svc.Preview(c.Request.Context(), kind, itemID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, entity)
}

func (s *Server) importItem(c *gin.Context) {
	kind, itemID, valid := pathArgs(c)
	if !valid {
		return
	}
	res, err := s.svc.Import(c.Request.Context(), kind, itemID)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"code": "ok", "message": "success", "data": res})
}

func (s *Server) records(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	recs, err := s.svc.Records(c.Request.Context(), c.Param("kind"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, recs)
}

func pathArgs(c *gin.Context) (string, string, bool) {
	kind := strings.TrimSpace(c.Param("kind"))
	itemID := strings.TrimSpace(c.Param("item_id"))
	if kind == "" || itemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": "kind and item id are required"})
		return "", "", false
	}
	return kind, itemID, true
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": "ok", "message": "success", "data": data})
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, mapping.ErrUnknownEntityKind), errors.Is(err, storage.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, importer.ErrBadPageToken), errors.Is(err, apnews.ErrEmptyArgument):
		status, code = http.StatusBadRequest, "bad_request"
	case importer.IsTransport(err):
		status, code = http.StatusBadGateway, "upstream_error"
	}

	s.log.WarnObj("api request failed", "api_error", map[string]any{
		"path":   c.FullPath(),
		"status": status,
		"error":  err.Error(),
	})

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"code": code, "message": msg})
}
