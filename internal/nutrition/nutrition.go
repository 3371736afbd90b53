package nutrition

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is one logged food item. Nutrient amounts are grams, except
// Kcal. A zero nutrient is simply "not tracked for this food".
type LogEntry struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	Meal        string    `json:"meal"`
	Food        string    `json:"food"`
	Description string    `json:"description,omitempty"`
	Kcal        float64   `json:"kcal"`
	Protein     float64   `json:"protein"`
	Fat         float64   `json:"fat"`
	Carbs       float64   `json:"carbs"`
	AddedSugar  float64   `json:"addedSugar"`
	Fiber       float64   `json:"fiber"`
	Alcohol     float64   `json:"alcohol"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DailySummary aggregates all entries of one calendar day.
type DailySummary struct {
	Date       time.Time `json:"date"`
	Entries    int       `json:"entries"`
	Kcal       float64   `json:"kcal"`
	Protein    float64   `json:"protein"`
	Fat        float64   `json:"fat"`
	Carbs      float64   `json:"carbs"`
	AddedSugar float64   `json:"addedSugar"`
	Fiber      float64   `json:"fiber"`
	Alcohol    float64   `json:"alcohol"`
}

// Goal is a daily nutrient target. The goal active on a given day is the
// latest one whose EffectiveFrom is not after that day.
type Goal struct {
	ID            uuid.UUID `json:"id"`
	EffectiveFrom time.Time `json:"effectiveFrom"`
	Kcal          float64   `json:"kcal"`
	Protein       float64   `json:"protein"`
	Fat           float64   `json:"fat"`
	Carbs         float64   `json:"carbs"`
	AddedSugar    float64   `json:"addedSugar"`
	Fiber         float64   `json:"fiber"`
	Alcohol       float64   `json:"alcohol"`
	CreatedAt     time.Time `json:"createdAt"`
}

// BodyMetric is a point-in-time body measurement, weight in kilograms.
type BodyMetric struct {
	ID        uuid.UUID `json:"id"`
	Date      time.Time `json:"date"`
	WeightKg  float64   `json:"weightKg"`
	BodyFat   float64   `json:"bodyFat,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
