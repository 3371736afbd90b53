package nutrition

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

type repoMock struct {
	entries map[uuid.UUID]*LogEntry
	goals   map[uuid.UUID]*Goal
	body    map[uuid.UUID]*BodyMetric
}

func NewMockRepo() *repoMock {
	return &repoMock{
		entries: make(map[uuid.UUID]*LogEntry),
		goals:   make(map[uuid.UUID]*Goal),
		body:    make(map[uuid.UUID]*BodyMetric),
	}
}

func (r *repoMock) AddEntry(_ context.Context, entry *LogEntry) (*LogEntry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *repoMock) AddEntries(ctx context.Context, entries []*LogEntry) ([]*LogEntry, error) {
	for _, entry := range entries {
		if err := validateEntry(entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range entries {
		if _, err := r.AddEntry(ctx, entry); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *repoMock) GetEntry(_ context.Context, id uuid.UUID) (*LogEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

func (r *repoMock) UpdateEntry(ctx context.Context, entry *LogEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if _, err := r.GetEntry(ctx, entry.ID); err != nil {
		return err
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *repoMock) DeleteEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := r.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *repoMock) ListEntries(_ context.Context, from, to time.Time) ([]LogEntry, error) {
	var entries []LogEntry
	for _, entry := range r.entries {
		if entry.Date.Before(from) || entry.Date.After(to) {
			continue
		}
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

func (r *repoMock) Summaries(ctx context.Context, from, to time.Time) ([]DailySummary, error) {
	entries, err := r.ListEntries(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]*DailySummary)
	for _, entry := range entries {
		day := entry.Date.Truncate(24 * time.Hour)
		summary, ok := byDay[day]
		if !ok {
			summary = &DailySummary{Date: day}
			byDay[day] = summary
		}
		summary.Entries++
		summary.Kcal += entry.Kcal
		summary.Protein += entry.Protein
		summary.Fat += entry.Fat
		summary.Carbs += entry.Carbs
		summary.AddedSugar += entry.AddedSugar
		summary.Fiber += entry.Fiber
		summary.Alcohol += entry.Alcohol
	}

	var summaries []DailySummary
	for _, summary := range byDay {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Date.Before(summaries[j].Date)
	})
	return summaries, nil
}

func (r *repoMock) SetGoal(_ context.Context, goal *Goal) (*Goal, error) {
	if goal.EffectiveFrom.IsZero() {
		return nil, ErrInvalidGoal
	}
	goal.ID = uuid.New()
	goal.CreatedAt = time.Now()
	r.goals[goal.ID] = goal
	return goal, nil
}

func (r *repoMock) ListGoals(_ context.Context) ([]Goal, error) {
	var goals []Goal
	for _, goal := range r.goals {
		goals = append(goals, *goal)
	}
	sort.Slice(goals, func(i, j int) bool {
		return goals[i].EffectiveFrom.After(goals[j].EffectiveFrom)
	})
	return goals, nil
}

func (r *repoMock) CurrentGoal(ctx context.Context, at time.Time) (*Goal, error) {
	goals, err := r.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	for _, goal := range goals {
		if !goal.EffectiveFrom.After(at) {
			return &goal, nil
		}
	}
	return nil, ErrGoalNotFound
}

func (r *repoMock) AddBodyMetric(_ context.Context, metric *BodyMetric) (*BodyMetric, error) {
	if metric.Date.IsZero() || metric.WeightKg <= 0 {
		return nil, ErrInvalidMetric
	}
	metric.ID = uuid.New()
	metric.CreatedAt = time.Now()
	r.body[metric.ID] = metric
	return metric, nil
}

func (r *repoMock) ListBodyMetrics(_ context.Context, from, to time.Time) ([]BodyMetric, error) {
	var bodyMetrics []BodyMetric
	for _, metric := range r.body {
		if metric.Date.Before(from) || metric.Date.After(to) {
			continue
		}
		bodyMetrics = append(bodyMetrics, *metric)
	}
	sort.Slice(bodyMetrics, func(i, j int) bool {
		return bodyMetrics[i].Date.Before(bodyMetrics[j].Date)
	})
	return bodyMetrics, nil
}
