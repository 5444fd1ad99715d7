package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/abipack/internal/logger"
	"github.com/samcharles93/abipack/internal/report"
	"github.com/samcharles93/abipack/pkg/abi"
)

const DefaultMaxUploadBytes = 64 << 20

type Server struct {
	store     *BinaryStore
	log       logger.Logger
	clock     func() time.Time
	maxUpload int64
}

type Options struct {
	Logger         logger.Logger
	MaxUploadBytes int64
}

func NewServer(store *BinaryStore, opts Options) *Server {
	if store == nil {
		store = NewBinaryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		store:     store,
		log:       opts.Logger,
		clock:     time.Now,
		maxUpload: opts.MaxUploadBytes,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/binaries", s.handleList)
	e.POST("/v1/binaries", s.handleUpload)
	e.GET("/v1/binaries/:id", s.handleGet)
	e.DELETE("/v1/binaries/:id", s.handleDelete)
	e.GET("/v1/binaries/:id/content", s.handleContent)
	e.GET("/v1/binaries/:id/metadata", s.handleMetadata)
	e.GET("/v1/binaries/:id/sections/:name", s.handleSection)
	e.POST("/v1/binaries/:id/relocate", s.handleRelocate)
}

// BinaryObject is the response for a stored binary.
type BinaryObject struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Name      string         `json:"name,omitempty"`
	CreatedAt int64          `json:"created_at"`
	Report    *report.Report `json:"report,omitempty"`
}

type BinaryList struct {
	Object string         `json:"object"`
	Data   []BinaryObject `json:"data"`
}

type DeleteResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type RelocateRequest struct {
	Target string `json:"target"`
	Base   uint64 `json:"base"`
}

type RelocateResp struct {
	Target string `json:"target"`
	Base   uint64 `json:"base"`
	Data   []byte `json:"data"`
}

func (s *Server) object(rec *binaryRecord, withReport bool) (BinaryObject, error) {
	obj := BinaryObject{
		ID:        rec.ID,
		Object:    "binary",
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt.Unix(),
	}
	if withReport {
		r, err := report.Build(rec.Packager, len(rec.Data))
		if err != nil {
			return obj, err
		}
		obj.Report = r
	}
	return obj, nil
}

func (s *Server) lookup(c *echo.Context) (*binaryRecord, bool) {
	id := c.Param("id")
	if id == "" {
		return nil, false
	}
	return s.store.Get(id)
}

func (s *Server) handleList(c *echo.Context) error {
	out := BinaryList{Object: "list", Data: []BinaryObject{}}
	for _, rec := range s.store.List() {
		obj, _ := s.object(rec, false)
		out.Data = append(out.Data, obj)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpload(c *echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, s.maxUpload+1))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if int64(len(body)) > s.maxUpload {
		return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error",
			fmt.Sprintf("binary exceeds %d bytes", s.maxUpload), "")
	}
	if len(body) == 0 {
		return writeBadRequest(c, "empty body")
	}
	rec, err := s.store.Create(c.QueryParam("name"), body, s.clock())
	if err != nil {
		s.log.Warn("rejected upload", "size", len(body), "error", err)
		return writeError(c, http.StatusUnprocessableEntity, "invalid_binary_error", err.Error(), "")
	}
	s.log.Info("stored binary", "id", rec.ID, "name", rec.Name, "size", len(body))
	obj, err := s.object(rec, true)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	return c.JSON(http.StatusCreated, obj)
}

func (s *Server) handleGet(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "binary not found")
	}
	obj, err := s.object(rec, true)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	return c.JSON(http.StatusOK, obj)
}

func (s *Server) handleDelete(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "binary not found")
	}
	s.log.Info("deleted binary", "id", id)
	return c.JSON(http.StatusOK, DeleteResp{ID: id, Object: "binary", Deleted: true})
}

func (s *Server) handleContent(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "binary not found")
	}
	return writeBlob(c, http.StatusOK, echo.MIMEOctetStream, rec.Data)
}

func (s *Server) handleMetadata(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "binary not found")
	}
	if c.QueryParam("raw") == "1" || strings.EqualFold(c.QueryParam("raw"), "true") {
		raw := rec.Packager.RawMetadata()
		if raw == nil {
			return writeNotFound(c, "binary has no metadata")
		}
		return writeBlob(c, http.StatusOK, "application/msgpack", raw)
	}
	r, err := report.Build(rec.Packager, len(rec.Data))
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	switch {
	case r.MetadataError != "":
		return writeError(c, http.StatusUnprocessableEntity, "invalid_metadata_error", r.MetadataError, "")
	case r.Metadata == nil:
		return writeNotFound(c, "binary has no metadata")
	}
	return c.JSON(http.StatusOK, r.Metadata)
}

func (s *Server) handleSection(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "binary not found")
	}
	name := c.Param("name")
	sec := rec.Packager.Container().Sections().Lookup(name)
	if sec == nil {
		return writeNotFound(c, fmt.Sprintf("section %q not found", name))
	}
	return writeBlob(c, http.StatusOK, echo.MIMEOctetStream, sec.Data())
}

func (s *Server) handleRelocate(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "binary not found")
	}
	req, err := decodeJSON[RelocateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Target == "" {
		req.Target = abi.SectionCode.String()
	}
	target, ok := abi.ParseSectionType(req.Target)
	if !ok || (target != abi.SectionCode && target != abi.SectionData) {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "target must be code or data", "target")
	}

	var src []byte
	switch target {
	case abi.SectionCode:
		src = rec.Packager.PipelineCode()
	case abi.SectionData:
		src, _, _ = rec.Packager.Data()
	}
	if src == nil {
		return writeNotFound(c, fmt.Sprintf("binary has no %s section", target))
	}
	buf := append([]byte(nil), src...)
	if err := rec.Packager.ApplyRelocations(buf, target, req.Base); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, abi.ErrRelocationOutOfRange) || errors.Is(err, abi.ErrUnsupportedRelocation) {
			status = http.StatusUnprocessableEntity
		}
		return writeError(c, status, "relocation_error", err.Error(), "")
	}
	s.log.Debug("relocated section", "id", rec.ID, "target", target.String(), "base", req.Base)
	return c.JSON(http.StatusOK, RelocateResp{Target: target.String(), Base: req.Base, Data: buf})
}
