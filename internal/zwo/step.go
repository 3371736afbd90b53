package zwo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Step is one workout segment. Each step kind renders itself as a single
// element of the generated workout file. A step that cannot be rendered
// (unknown kind, broken ramp bounds) renders as an XML comment instead,
// so one bad step never aborts the whole compilation.
type Step interface {
	appendXML(sb *strings.Builder)
}

type SteadyState struct {
	Duration int
	Power    numeric
	Cadence  numeric
}

type Warmup struct {
	Duration  int
	PowerLow  numeric
	PowerHigh numeric
	Cadence   numeric
}

type Cooldown struct {
	Duration  int
	PowerLow  numeric
	PowerHigh numeric
	Cadence   numeric
}

// Ramp picks its direction at render time: a ramp going up is a Warmup
// element, a ramp going down stays a Cooldown to preserve the direction.
type Ramp struct {
	Duration int
	Start    numeric
	End      numeric
	Cadence  numeric
}

type IntervalsT struct {
	Repeat         int
	OnDuration     int
	OffDuration    int
	OnPower        numeric
	OffPower       numeric
	Cadence        numeric
	CadenceResting numeric
}

type FreeRide struct {
	Duration int
}

// UnknownStep holds the unrecognized type value, for the comment placeholder.
type UnknownStep struct {
	Type string
}

func (s SteadyState) appendXML(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf(`    <SteadyState Duration="%d" Power="%s"`, s.Duration, s.Power.PowerString()))
	appendCadenceAttr(sb, "Cadence", s.Cadence)
	sb.WriteString(" />\n")
}

func (s Warmup) appendXML(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf(
		`    <Warmup Duration="%d" PowerLow="%s" PowerHigh="%s"`,
		s.Duration, s.PowerLow.PowerString(), s.PowerHigh.PowerString(),
	))
	appendCadenceAttr(sb, "Cadence", s.Cadence)
	sb.WriteString(" />\n")
}

func (s Cooldown) appendXML(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf(
		`    <Cooldown Duration="%d" PowerLow="%s" PowerHigh="%s"`,
		s.Duration, s.PowerLow.PowerString(), s.PowerHigh.PowerString(),
	))
	appendCadenceAttr(sb, "Cadence", s.Cadence)
	sb.WriteString(" />\n")
}

func (s Ramp) appendXML(sb *strings.Builder) {
	if !s.Start.IsFinite() || !s.End.IsFinite() {
		sb.WriteString(fmt.Sprintf(
			"    <!-- Invalid ramp values: start=%s end=%s -->\n",
			escapeXML(s.Start.Raw()), escapeXML(s.End.Raw()),
		))
		return
	}
	element := "Warmup"
	if s.End.Value() < s.Start.Value() {
		element = "Cooldown"
	}
	sb.WriteString(fmt.Sprintf(
		`    <%s Duration="%d" PowerLow="%s" PowerHigh="%s"`,
		element, s.Duration, s.Start.PowerString(), s.End.PowerString(),
	))
	appendCadenceAttr(sb, "Cadence", s.Cadence)
	sb.WriteString(" />\n")
}

func (s IntervalsT) appendXML(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf(
		`    <IntervalsT Repeat="%d" OnDuration="%d" OffDuration="%d" OnPower="%s" OffPower="%s"`,
		s.Repeat, s.OnDuration, s.OffDuration, s.OnPower.PowerString(), s.OffPower.PowerString(),
	))
	appendCadenceAttr(sb, "Cadence", s.Cadence)
	appendCadenceAttr(sb, "CadenceResting", s.CadenceResting)
	sb.WriteString(" />\n")
}

func (s FreeRide) appendXML(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf("    <FreeRide Duration=\"%d\" />\n", s.Duration))
}

func (s UnknownStep) appendXML(sb *strings.Builder) {
	sb.WriteString(fmt.Sprintf("    <!-- Unknown step type: %s -->\n", escapeXML(s.Type)))
}

func appendCadenceAttr(sb *strings.Builder, name string, cadence numeric) {
	if !cadence.Present() {
		return
	}
	sb.WriteString(fmt.Sprintf(` %s="%s"`, name, escapeXML(cadence.Raw())))
}

// numeric is a JSON field which should hold a number but, the inputs being
// what they are, may arrive as a quoted numeric string, junk, or be absent.
// The raw form is kept around for comment placeholders.
type numeric struct {
	raw     string
	val     float64
	present bool
	finite  bool
}

func (n *numeric) UnmarshalJSON(data []byte) error {
	// a literal null is the same as the field not being there at all
	if string(data) == "null" {
		return nil
	}
	n.present = true

	var asFloat float64
	if err := json.Unmarshal(data, &asFloat); err == nil {
		n.raw = strings.Trim(string(data), `"`)
		n.val = asFloat
		n.finite = !math.IsNaN(asFloat) && !math.IsInf(asFloat, 0)
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		n.raw = asString
		if v, err := strconv.ParseFloat(strings.TrimSpace(asString), 64); err == nil {
			n.val = v
			n.finite = true
		}
		return nil
	}

	n.raw = string(data)
	return nil
}

func (n numeric) Present() bool  { return n.present }
func (n numeric) IsFinite() bool { return n.present && n.finite }
func (n numeric) Value() float64 { return n.val }

func (n numeric) Raw() string {
	if !n.present {
		return "undefined"
	}
	return n.raw
}

// Int truncates to an integer, the way the original file format expects
// durations and repeat counts.
func (n numeric) Int() int {
	if !n.IsFinite() {
		return 0
	}
	return int(n.val)
}

// PowerString renders a power-like value rounded to 3 decimal places,
// without trailing zeros. Non-finite values render as "0".
func (n numeric) PowerString() string {
	if !n.IsFinite() {
		return "0"
	}
	rounded := math.Round(n.val*1000) / 1000
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
