// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"offline-enhancer/internal/inference"
	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/opencv/safe"
	"offline-enhancer/internal/pipeline"
	"offline-enhancer/internal/processing/tiling"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/zstd"
)

const (
	component = "Server"

	// MaxBodySize caps request bodies after decompression
	MaxBodySize     = 64 << 20
	maxMultipartMem = 10 << 20

	RequestIDHeader = "X-Request-ID"
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
	"gif":  "image/gif",
}

type requestIDKey struct{}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// PlanTile is one entry of a /plan response
type PlanTile struct {
	Index  int `json:"index"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type PlanResponse struct {
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Scale        int        `json:"scale"`
	TileSize     int        `json:"tile_size"`
	Overlap      int        `json:"overlap"`
	OutputWidth  int        `json:"output_width"`
	OutputHeight int        `json:"output_height"`
	Tiles        []PlanTile `json:"tiles"`
}

// poolMetrics is implemented by backends that run on a session pool
type poolMetrics interface {
	Metrics() inference.PoolSnapshot
}

type Server struct {
	engine pipeline.Processor
	log    logger.Logger
	router *mux.Router
}

func New(engine pipeline.Processor, log logger.Logger) *Server {
	s := &Server{
		engine: engine,
		log:    log,
		router: mux.NewRouter(),
	}

	s.router.Use(s.requestContext)
	s.router.HandleFunc("/upscale", s.handleUpscale).Methods(http.MethodPost)
	s.router.Handle("/plan", gzhttp.GzipHandler(http.HandlerFunc(s.handlePlan))).Methods(http.MethodPost)
	s.addMonitoringRoutes(s.router)

	return s
}

func (s *Server) addMonitoringRoutes(r *mux.Router) {
	r.Handle("/metrics", gzhttp.GzipHandler(http.HandlerFunc(s.handleMetrics))).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns a configured *http.Server for addr. It satisfies
// shutdown.Shutdownable.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Handler:           s.router,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Minute,
	}
}

func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))

		s.log.Debug(component, "request served", map[string]interface{}{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handleUpscale(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimPrefix(r.URL.Query().Get("format"), "."))
	if format == "" {
		format = "png"
	}
	contentType, ok := contentTypes[format]
	if !ok {
		s.sendError(w, r, "unsupported_format", fmt.Sprintf("unsupported output format %q", format), http.StatusBadRequest)
		return
	}

	data, err := readImageBytes(w, r)
	if err != nil {
		s.sendError(w, r, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, err := pipeline.DecodeImage(data)
	if err != nil {
		s.sendError(w, r, "invalid_image", "Failed to decode image", http.StatusBadRequest)
		return
	}

	result, report, err := s.engine.ProcessImage(r.Context(), img)
	if err != nil {
		switch {
		case errors.Is(err, safe.ErrDimensions):
			s.sendError(w, r, "image_too_large", err.Error(), http.StatusBadRequest)
		case errors.Is(err, pipeline.ErrEmptyImage):
			s.sendError(w, r, "processing_error", err.Error(), http.StatusBadRequest)
		default:
			s.sendError(w, r, "processing_error", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	encoded, err := pipeline.EncodeImage(result, format)
	if err != nil {
		s.sendError(w, r, "encode_error", err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.Info(component, "upscale served", map[string]interface{}{
		"request_id": requestID(r.Context()),
		"tiles":      report.Tiles,
		"skipped":    report.Skipped,
		"bytes":      len(encoded),
	})

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(encoded)))
	w.Header().Set("X-Tiles-Total", strconv.Itoa(report.Tiles))
	w.Header().Set("X-Tiles-Skipped", strconv.Itoa(report.Skipped))
	w.WriteHeader(http.StatusOK)
	w.Write(encoded)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	opts := s.engine.Options()
	tileSize, overlap := opts.TileSize, opts.TileOverlap

	var err error
	if v := r.URL.Query().Get("tile"); v != "" {
		if tileSize, err = strconv.Atoi(v); err != nil {
			s.sendError(w, r, "invalid_request", "tile must be an integer", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("overlap"); v != "" {
		if overlap, err = strconv.Atoi(v); err != nil {
			s.sendError(w, r, "invalid_request", "overlap must be an integer", http.StatusBadRequest)
			return
		}
	}

	data, err := readImageBytes(w, r)
	if err != nil {
		s.sendError(w, r, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	img, err := pipeline.DecodeImage(data)
	if err != nil {
		s.sendError(w, r, "invalid_image", "Failed to decode image", http.StatusBadRequest)
		return
	}

	rects, err := tiling.Grid(img.Width, img.Height, tileSize, overlap)
	if err != nil {
		s.sendError(w, r, "invalid_geometry", err.Error(), http.StatusBadRequest)
		return
	}

	response := PlanResponse{
		Width:        img.Width,
		Height:       img.Height,
		Scale:        opts.Scale,
		TileSize:     tileSize,
		Overlap:      overlap,
		OutputWidth:  img.Width * opts.Scale,
		OutputHeight: img.Height * opts.Scale,
		Tiles:        make([]PlanTile, len(rects)),
	}
	for i, rect := range rects {
		response.Tiles[i] = PlanTile{Index: i, X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	backend := s.engine.Backend()
	response := map[string]interface{}{
		"backend":   backend.Name(),
		"timings":   s.engine.Timing().Summaries(),
		"open_mats": safe.Live(),
	}
	if pooled, ok := backend.(poolMetrics); ok {
		response["pool"] = pooled.Metrics()
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.engine.Backend().Name(),
	})
}

// readImageBytes accepts a JSON body {"image": base64}, a multipart upload in
// field "file", or the raw image bytes. Raw bodies may be zstd compressed.
func readImageBytes(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		data []byte
		err  error
	)
	switch mediaType {
	case "application/json":
		data, err = handleJSONRequest(r)
	case "multipart/form-data":
		data, err = handleMultipartRequest(r)
	default:
		data, err = handleRawRequest(r)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("request carries no image data")
	}
	return data, nil
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxMultipartMem); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	if !strings.EqualFold(r.Header.Get("Content-Encoding"), "zstd") {
		return io.ReadAll(r.Body)
	}

	dec, err := zstd.NewReader(r.Body,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxBodySize),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(io.LimitReader(dec, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("zstd body: %w", err)
	}
	if len(data) > MaxBodySize {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", MaxBodySize)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	id := requestID(r.Context())
	s.log.Warning(component, "request failed", map[string]interface{}{
		"request_id": id,
		"code":       code,
		"message":    message,
		"status":     status,
	})
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: id,
	})
}
