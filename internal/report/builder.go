// Package report renders a clinical record into the fixed-section plain-text
// artifact used for print, download and clipboard. The section order and
// placeholder text are a contract with downstream tooling: every field is
// rendered with an explicit placeholder when absent, never omitted, and the
// same inputs always produce byte-identical output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/careops/clinic-api/internal/model"
)

const (
	PlaceholderField   = "-"
	PlaceholderNotes   = "No notes provided"
	PlaceholderPayload = "No results available"

	timeLayout = "2006-01-02 15:04:05 UTC"

	rule = "------------------------------------------------------------"
	bar  = "============================================================"
)

var typeTitles = map[model.RecordType]string{
	model.RecordTypeLabTest:      "Laboratory Test",
	model.RecordTypePrescription: "Prescription",
}

var payloadHeadings = map[model.RecordType]string{
	model.RecordTypeLabTest:      "RESULTS",
	model.RecordTypePrescription: "DISPENSATION",
}

// Build renders the record as seen by the generating actor. Redaction has
// already happened upstream; the builder renders whatever payload it is
// given, including the restricted marker.
func Build(rec *model.RecordView, ids model.RecordIdentities, generatedBy model.Identity, generatedAt time.Time) string {
	var b strings.Builder

	title, ok := typeTitles[rec.Type]
	if !ok {
		title = string(rec.Type)
	}
	payloadHeading, ok := payloadHeadings[rec.Type]
	if !ok {
		payloadHeading = "PAYLOAD"
	}

	b.WriteString(bar + "\n")
	b.WriteString(" CLINICAL RECORD REPORT\n")
	b.WriteString(bar + "\n")
	writeField(&b, "Record type", title)
	writeField(&b, "Record ID", rec.ID.String())
	writeField(&b, "Status", string(rec.Status))

	b.WriteString(rule + "\n")
	b.WriteString("PATIENT\n")
	writeField(&b, "Name", ids.Patient.Name)
	writeField(&b, "Contact", ids.Patient.Contact)

	b.WriteString(rule + "\n")
	b.WriteString("ORDER & ASSIGNMENT\n")
	writeField(&b, "Ordered by", ids.OrderedBy.Name)
	writeField(&b, "Assigned to", ids.AssignedTo.Name)
	writeField(&b, "Created", rec.CreatedAt.UTC().Format(timeLayout))
	writeField(&b, "Last update", rec.UpdatedAt.UTC().Format(timeLayout))

	b.WriteString(rule + "\n")
	b.WriteString("NOTES\n")
	writeBlock(&b, rec.Notes, PlaceholderNotes)

	b.WriteString(rule + "\n")
	b.WriteString(payloadHeading + "\n")
	writeBlock(&b, rec.Payload, PlaceholderPayload)

	b.WriteString(bar + "\n")
	generator := generatedBy.Name
	if generator == "" {
		generator = PlaceholderField
	}
	fmt.Fprintf(&b, "Generated at %s by %s\n", generatedAt.UTC().Format(timeLayout), generator)

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = PlaceholderField
	}
	fmt.Fprintf(b, "%-12s: %s\n", label, value)
}

func writeBlock(b *strings.Builder, value, placeholder string) {
	if value == "" {
		value = placeholder
	}
	b.WriteString(value + "\n")
}
