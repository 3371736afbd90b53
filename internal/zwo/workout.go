package zwo

import (
	"encoding/json"
	"strings"
)

// Workout is the JSON workout definition accepted by the import endpoints.
type Workout struct {
	Name        string
	Description string
	Steps       []Step
	TextEvents  []TextEvent
}

// TextEvent is a message shown at an absolute offset into the workout.
// Events with an empty message are dropped at parse time.
type TextEvent struct {
	TimeOffset int
	Message    string
}

func (w *Workout) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name        *string           `json:"name"`
		Description string            `json:"description"`
		Steps       []json.RawMessage `json:"steps"`
		TextEvents  []rawTextEvent    `json:"textEvents"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	w.Name = "Workout"
	if raw.Name != nil {
		w.Name = *raw.Name
	}
	w.Description = raw.Description

	w.Steps = make([]Step, 0, len(raw.Steps))
	for _, rawStep := range raw.Steps {
		step, err := parseStep(rawStep)
		if err != nil {
			return err
		}
		w.Steps = append(w.Steps, step)
	}

	w.TextEvents = w.TextEvents[:0]
	for _, evt := range raw.TextEvents {
		message := evt.Message
		if message == "" {
			message = evt.Text
		}
		if message == "" {
			continue
		}
		offset := evt.TimeOffset
		if !offset.Present() {
			offset = evt.Offset
		}
		w.TextEvents = append(w.TextEvents, TextEvent{
			TimeOffset: offset.Int(),
			Message:    message,
		})
	}

	return nil
}

type rawTextEvent struct {
	TimeOffset numeric `json:"timeOffset"`
	Offset     numeric `json:"offset"`
	Message    string  `json:"message"`
	Text       string  `json:"text"`
}

// parseStep dispatches on the "type" field. A missing type with
// duration+target present is the legacy untyped steady shape and maps to
// SteadyState at parse time, so the rest of the pipeline never sees it.
func parseStep(data json.RawMessage) (Step, error) {
	var raw struct {
		Type           string  `json:"type"`
		Duration       numeric `json:"duration"`
		Target         numeric `json:"target"`
		Cadence        numeric `json:"cadence"`
		Start          numeric `json:"start"`
		End            numeric `json:"end"`
		Repeat         numeric `json:"repeat"`
		OnDuration     numeric `json:"onDuration"`
		OffDuration    numeric `json:"offDuration"`
		OnPower        numeric `json:"onPower"`
		OffPower       numeric `json:"offPower"`
		CadenceResting numeric `json:"cadenceResting"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	stepType := strings.ToLower(raw.Type)
	if raw.Type == "" {
		// legacy untyped steady shape
		stepType = "steady"
	}

	switch stepType {
	case "steady":
		return SteadyState{
			Duration: raw.Duration.Int(),
			Power:    raw.Target,
			Cadence:  raw.Cadence,
		}, nil
	case "warmup":
		return Warmup{
			Duration:  raw.Duration.Int(),
			PowerLow:  raw.Start,
			PowerHigh: raw.End,
			Cadence:   raw.Cadence,
		}, nil
	case "cooldown":
		return Cooldown{
			Duration:  raw.Duration.Int(),
			PowerLow:  raw.Start,
			PowerHigh: raw.End,
			Cadence:   raw.Cadence,
		}, nil
	case "ramp":
		return Ramp{
			Duration: raw.Duration.Int(),
			Start:    raw.Start,
			End:      raw.End,
			Cadence:  raw.Cadence,
		}, nil
	case "intervalst":
		return IntervalsT{
			Repeat:         raw.Repeat.Int(),
			OnDuration:     raw.OnDuration.Int(),
			OffDuration:    raw.OffDuration.Int(),
			OnPower:        raw.OnPower,
			OffPower:       raw.OffPower,
			Cadence:        raw.Cadence,
			CadenceResting: raw.CadenceResting,
		}, nil
	case "freeride":
		return FreeRide{
			Duration: raw.Duration.Int(),
		}, nil
	default:
		return UnknownStep{Type: stepType}, nil
	}
}

// Filename is the name the generated file is uploaded under.
func (w *Workout) Filename() string {
	name := strings.TrimSpace(w.Name)
	if name == "" {
		name = "Workout"
	}
	return name + ".zwo"
}
