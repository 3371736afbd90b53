package xert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// ScheduleResult wraps the upstream calendar response with the event id dug
// out of whichever field the upstream chose to put it in.
type ScheduleResult struct {
	Success bool            `json:"success"`
	EventID any             `json:"eventId"`
	Data    json.RawMessage `json:"data"`
}

// ScheduleWorkout places a workout on the athlete's calendar through the
// session-authenticated endpoint. The caller's JSON payload passes through
// untouched, except for the calendar owner: when the client is configured
// with a forUser alias it is always enforced, otherwise any caller-supplied
// value is stripped.
func (c *Client) ScheduleWorkout(ctx context.Context, payload []byte) (*ScheduleResult, *UpstreamResponse, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "xert.client.scheduleWorkout")
	defer span.End()

	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, nil, fmt.Errorf("parse event payload: %w", err)
	}

	if c.forUser != "" {
		event["forUser"] = c.forUser
	} else {
		delete(event, "forUser")
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal event payload: %w", err)
	}

	importCtx, err := c.login(ctx)
	if err != nil {
		c.metrics.CounterFailedLogins.Inc()
		span.SetStatus(codes.Error, fmt.Sprintf("login: %s", err))
		return nil, nil, err
	}
	c.metrics.CounterSessionLogins.Inc()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.baseURL+"/createCalendarEvent",
		bytes.NewReader(eventBytes),
	)
	if err != nil {
		return nil, nil, err
	}
	for name, values := range importCtx.uploadHeaders {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-csrf-token", importCtx.csrf)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("upstream: %s", err))
		return nil, nil, fmt.Errorf("create calendar event: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read calendar response: %w", err)
	}

	upstream := &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: responseContentType(resp),
		Body:        respBytes,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warnf("schedule workout rejected upstream, status %d", resp.StatusCode)
		return nil, upstream, nil
	}

	result := &ScheduleResult{
		Success: true,
		EventID: extractEventID(respBytes),
		Data:    json.RawMessage(respBytes),
	}
	if !json.Valid(respBytes) {
		result.Data, _ = json.Marshal(string(respBytes))
	}

	return result, upstream, nil
}

// extractEventID probes the known aliases of the event id field.
func extractEventID(body []byte) any {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	for _, key := range []string{"eventId", "id", "event_id"} {
		if v, ok := data[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
