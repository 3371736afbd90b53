package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"
	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"
	"github.com/tmhinkle/fitgateway/pkg"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// default window for listing when the caller gives no range
const defaultListDays = 30

type repo interface {
	AddEntry(ctx context.Context, entry *LogEntry) (*LogEntry, error)
	AddEntries(ctx context.Context, entries []*LogEntry) ([]*LogEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*LogEntry, error)
	UpdateEntry(ctx context.Context, entry *LogEntry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	ListEntries(ctx context.Context, from, to time.Time) ([]LogEntry, error)
	Summaries(ctx context.Context, from, to time.Time) ([]DailySummary, error)
	SetGoal(ctx context.Context, goal *Goal) (*Goal, error)
	ListGoals(ctx context.Context) ([]Goal, error)
	CurrentGoal(ctx context.Context, at time.Time) (*Goal, error)
	AddBodyMetric(ctx context.Context, metric *BodyMetric) (*BodyMetric, error)
	ListBodyMetrics(ctx context.Context, from, to time.Time) ([]BodyMetric, error)
}

type Handler struct {
	repo    repo
	metrics *metrics.Manager
}

func NewHandler(repo repo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/logs", handler.handleAddLogs).Methods("POST", "OPTIONS")
	router.HandleFunc("/logs", handler.handleListLogs).Methods("GET", "OPTIONS")
	router.HandleFunc("/logs/{id}", handler.handleGetLog).Methods("GET", "OPTIONS")
	router.HandleFunc("/logs/{id}", handler.handleUpdateLog).Methods("PUT", "OPTIONS")
	router.HandleFunc("/logs/{id}", handler.handleDeleteLog).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/summaries", handler.handleSummaries).Methods("GET", "OPTIONS")
	router.HandleFunc("/goals", handler.handleSetGoal).Methods("POST", "OPTIONS")
	router.HandleFunc("/goals", handler.handleListGoals).Methods("GET", "OPTIONS")
	router.HandleFunc("/goals/current", handler.handleCurrentGoal).Methods("GET", "OPTIONS")
	router.HandleFunc("/metrics/body", handler.handleAddBodyMetric).Methods("POST", "OPTIONS")
	router.HandleFunc("/metrics/body", handler.handleListBodyMetrics).Methods("GET", "OPTIONS")
}

func writeJSON(w http.ResponseWriter, payload any, statusCode int) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("failed to marshal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, body, statusCode)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}

func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrGoalNotFound),
		errors.Is(err, ErrMetricNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidEntry),
		errors.Is(err, ErrInvalidGoal),
		errors.Is(err, ErrInvalidMetric):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Errorf("nutrition handler: %s", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// parseDay accepts a plain date or a full RFC 3339 timestamp.
func parseDay(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -defaultListDays)
	to := now

	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		parsed, err := parseDay(fromParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
		}
		from = parsed
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		parsed, err := parseDay(toParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
		}
		// plain dates are inclusive of the whole day
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to date before from date")
	}

	return from, to, nil
}

// handleAddLogs adds a single entry, or a batch when the payload carries an
// items array.
func (handler *Handler) handleAddLogs(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.addLogs")
	defer span.End()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, "invalid json", http.StatusBadRequest)
		return
	}

	var probe struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Items != nil {
		entries := make([]*LogEntry, 0, len(probe.Items))
		for _, item := range probe.Items {
			var entry LogEntry
			if err := json.Unmarshal(item, &entry); err != nil {
				writeError(w, fmt.Sprintf("invalid log entry: %s", err), http.StatusBadRequest)
				return
			}
			entries = append(entries, &entry)
		}
		if len(entries) == 0 {
			writeError(w, "no entries provided", http.StatusBadRequest)
			return
		}

		added, err := handler.repo.AddEntries(ctx, entries)
		if err != nil {
			writeRepoError(w, err)
			return
		}

		handler.metrics.CounterNutritionLogs.Add(float64(len(added)))
		log.Debugf("added %d nutrition log entries", len(added))
		writeJSON(w, map[string]any{"items": added}, http.StatusCreated)
		return
	}

	var entry LogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		writeError(w, fmt.Sprintf("invalid log entry: %s", err), http.StatusBadRequest)
		return
	}

	added, err := handler.repo.AddEntry(ctx, &entry)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	handler.metrics.CounterNutritionLogs.Inc()
	log.Debugf("added nutrition log entry %s [%s]", added.ID, added.Food)
	writeJSON(w, added, http.StatusCreated)
}

func (handler *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.listLogs")
	defer span.End()

	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := handler.repo.ListEntries(ctx, from, to)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if entries == nil {
		entries = []LogEntry{}
	}

	writeJSON(w, entries, http.StatusOK)
}

func entryID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (handler *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.getLog")
	defer span.End()

	id, err := entryID(r)
	if err != nil {
		writeError(w, "invalid id", http.StatusBadRequest)
		return
	}

	entry, err := handler.repo.GetEntry(ctx, id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, entry, http.StatusOK)
}

func (handler *Handler) handleUpdateLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.updateLog")
	defer span.End()

	id, err := entryID(r)
	if err != nil {
		writeError(w, "invalid id", http.StatusBadRequest)
		return
	}

	var entry LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, "invalid log entry", http.StatusBadRequest)
		return
	}
	// path id wins over whatever is in the body
	entry.ID = id

	if err := handler.repo.UpdateEntry(ctx, &entry); err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, entry, http.StatusOK)
}

func (handler *Handler) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.deleteLog")
	defer span.End()

	id, err := entryID(r)
	if err != nil {
		writeError(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := handler.repo.DeleteEntry(ctx, id); err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, map[string]string{"deleted": id.String()}, http.StatusOK)
}

func (handler *Handler) handleSummaries(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.summaries")
	defer span.End()

	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, err := handler.repo.Summaries(ctx, from, to)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if summaries == nil {
		summaries = []DailySummary{}
	}

	writeJSON(w, summaries, http.StatusOK)
}

func (handler *Handler) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.setGoal")
	defer span.End()

	var goal Goal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		writeError(w, "invalid goal", http.StatusBadRequest)
		return
	}
	if goal.EffectiveFrom.IsZero() {
		goal.EffectiveFrom = time.Now()
	}

	added, err := handler.repo.SetGoal(ctx, &goal)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, added, http.StatusCreated)
}

func (handler *Handler) handleListGoals(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.listGoals")
	defer span.End()

	goals, err := handler.repo.ListGoals(ctx)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if goals == nil {
		goals = []Goal{}
	}

	writeJSON(w, goals, http.StatusOK)
}

func (handler *Handler) handleCurrentGoal(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.currentGoal")
	defer span.End()

	goal, err := handler.repo.CurrentGoal(ctx, time.Now())
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, goal, http.StatusOK)
}

func (handler *Handler) handleAddBodyMetric(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.addBodyMetric")
	defer span.End()

	var metric BodyMetric
	if err := json.NewDecoder(r.Body).Decode(&metric); err != nil {
		writeError(w, "invalid body metric", http.StatusBadRequest)
		return
	}

	added, err := handler.repo.AddBodyMetric(ctx, &metric)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, added, http.StatusCreated)
}

func (handler *Handler) handleListBodyMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handler.listBodyMetrics")
	defer span.End()

	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	bodyMetrics, err := handler.repo.ListBodyMetrics(ctx, from, to)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if bodyMetrics == nil {
		bodyMetrics = []BodyMetric{}
	}

	writeJSON(w, bodyMetrics, http.StatusOK)
}
