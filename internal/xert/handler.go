package xert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tmhinkle/fitgateway/internal/middleware"
	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"
	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"
	"github.com/tmhinkle/fitgateway/internal/zwo"
	"github.com/tmhinkle/fitgateway/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// max size of an inbound import upload, files included
const maxImportRequestSize = 32 << 20

type Handler struct {
	client  *Client
	metrics *metrics.Manager
}

func NewHandler(client *Client, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		client:  client,
		metrics: metricsManager,
	}
}

func (h *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	importAllowedPerMin int,
) {
	limited := func(next http.HandlerFunc) http.Handler {
		if rateLimiter == nil {
			return next
		}
		return middleware.RateLimit(rateLimiter, "import-workout", importAllowedPerMin)(next)
	}
	router.Handle("/import-workout-json", limited(h.handleImportWorkoutJSON)).Methods("POST", "OPTIONS").Name("import-workout-json")
	router.Handle("/import-workout-file", limited(h.handleImportWorkoutFile)).Methods("POST", "OPTIONS").Name("import-workout-file")

	router.HandleFunc("/schedule-workout", h.handleScheduleWorkout).Methods("POST", "OPTIONS").Name("schedule-workout")
	router.HandleFunc("/recentRides", h.handleRecentRides).Methods("GET", "OPTIONS").Name("recent-rides")

	// everything else goes to the bearer-token API
	router.PathPrefix("/").HandlerFunc(h.handleProxy).Name("api-proxy")
}

func writeErrorJSON(w http.ResponseWriter, message string, statusCode int) {
	body, _ := json.Marshal(map[string]string{"error": message})
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, body, statusCode)
}

// writeUpstream relays an upstream response to the caller as-is.
func writeUpstream(w http.ResponseWriter, resp *UpstreamResponse) {
	pkg.WriteResponseBytes(w, resp.ContentType, resp.Body, resp.StatusCode)
}

// writeClientError maps the client's sentinel errors onto HTTP statuses.
func writeClientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoFiles):
		writeErrorJSON(w, ErrNoFiles.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoAccessToken):
		writeErrorJSON(w, "Failed to obtain token", http.StatusUnauthorized)
	case errors.Is(err, ErrNoLoginCSRF), errors.Is(err, ErrNoImportCSRF), errors.Is(err, ErrLoginBlocked):
		writeErrorJSON(w, err.Error(), http.StatusUnauthorized)
	default:
		log.Errorf("xert handler: %s", err)
		writeErrorJSON(w, "internal server error", http.StatusInternalServerError)
	}
}

// handleImportWorkoutJSON compiles a workout description to a .zwo document
// and uploads it to the import endpoint as a single file.
func (h *Handler) handleImportWorkoutJSON(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.importWorkoutJSON")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportRequestSize))
	if err != nil {
		writeErrorJSON(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var workout zwo.Workout
	if err := json.Unmarshal(body, &workout); err != nil {
		writeErrorJSON(w, fmt.Sprintf("invalid workout json: %s", err), http.StatusBadRequest)
		return
	}

	file := WorkoutFile{
		Name:    workout.Filename(),
		Content: zwo.Compile(&workout),
	}

	resp, err := h.client.UploadWorkoutFiles(ctx, []WorkoutFile{file}, UploadOptions{
		ConvertAboveFTP: r.URL.Query().Get("convert_above_ftp"),
		ConvertBelowFTP: r.URL.Query().Get("convert_below_ftp"),
	})
	if err != nil {
		writeClientError(w, err)
		return
	}

	writeUpstream(w, resp)
}

// handleImportWorkoutFile relays a multipart upload of ready-made workout
// files to the import endpoint.
func (h *Handler) handleImportWorkoutFile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.importWorkoutFile")
	defer span.End()

	if err := r.ParseMultipartForm(maxImportRequestSize); err != nil {
		writeErrorJSON(w, fmt.Sprintf("invalid multipart request: %s", err), http.StatusBadRequest)
		return
	}

	var files []WorkoutFile
	if r.MultipartForm != nil {
		fileHeaders := r.MultipartForm.File["files[]"]
		if len(fileHeaders) == 0 {
			// older clients send a single part named "file"
			fileHeaders = r.MultipartForm.File["file"]
		}
		for _, header := range fileHeaders {
			f, err := header.Open()
			if err != nil {
				writeErrorJSON(w, "failed to read uploaded file", http.StatusBadRequest)
				return
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeErrorJSON(w, "failed to read uploaded file", http.StatusBadRequest)
				return
			}
			files = append(files, WorkoutFile{Name: header.Filename, Content: content})
		}
	}

	resp, err := h.client.UploadWorkoutFiles(ctx, files, UploadOptions{
		ConvertAboveFTP: r.FormValue("convert_above_ftp"),
		ConvertBelowFTP: r.FormValue("convert_below_ftp"),
	})
	if err != nil {
		writeClientError(w, err)
		return
	}

	writeUpstream(w, resp)
}

func (h *Handler) handleScheduleWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.scheduleWorkout")
	defer span.End()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxImportRequestSize))
	if err != nil {
		writeErrorJSON(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(payload) == 0 || !json.Valid(payload) {
		writeErrorJSON(w, "invalid event json", http.StatusBadRequest)
		return
	}

	result, upstream, err := h.client.ScheduleWorkout(ctx, payload)
	if err != nil {
		writeClientError(w, err)
		return
	}
	if result == nil {
		// upstream said no, relay its answer
		writeUpstream(w, upstream)
		return
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		writeErrorJSON(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteJSONResponseOK(w, string(resultBytes))
}

func (h *Handler) handleRecentRides(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.recentRides")
	defer span.End()

	days := 1
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		parsed, err := strconv.Atoi(daysParam)
		if err != nil || parsed <= 0 {
			writeErrorJSON(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	resp, err := h.client.RecentRides(ctx, days)
	if err != nil {
		writeClientError(w, err)
		return
	}

	writeUpstream(w, resp)
}

// handleProxy relays any other request to the upstream OAuth API with a
// bearer token attached.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.apiProxy")
	defer span.End()

	resp, err := h.client.ProxyAPI(
		ctx,
		r.Method, r.URL.Path, r.URL.RawQuery,
		r.Body, r.Header.Get("Content-Type"),
	)
	if err != nil {
		writeClientError(w, err)
		return
	}

	writeUpstream(w, resp)
}
