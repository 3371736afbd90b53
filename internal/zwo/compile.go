package zwo

import (
	"fmt"
	"strings"
)

const fileAuthor = "fitgateway"

// Compile renders a workout definition into the ZWO XML file format.
// It is a pure transform: the same workout always yields the same bytes,
// steps and text events come out in input order, and broken steps come
// out as comment placeholders rather than failing the compile.
func Compile(w *Workout) []byte {
	var sb strings.Builder

	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	sb.WriteString("<workout_file>\n")
	sb.WriteString(fmt.Sprintf("  <author>%s</author>\n", fileAuthor))
	sb.WriteString(fmt.Sprintf("  <name>%s</name>\n", escapeXML(w.Name)))
	if w.Description != "" {
		sb.WriteString(fmt.Sprintf("  <description>%s</description>\n", escapeXML(w.Description)))
	}
	sb.WriteString("  <workout>\n")

	for _, step := range w.Steps {
		step.appendXML(&sb)
	}
	for _, evt := range w.TextEvents {
		sb.WriteString(fmt.Sprintf(
			"    <textevent timeoffset=\"%d\" message=\"%s\" />\n",
			evt.TimeOffset, escapeXML(evt.Message),
		))
	}

	sb.WriteString("  </workout>\n")
	sb.WriteString("</workout_file>")

	return []byte(sb.String())
}
