package session

import (
	"strings"

	"hirevoice/internal/storage"
)

// Assemble linearizes an event log into the durable transcript: one
// "<role>: <text>" line per entry, in arrival order, no reordering or
// deduplication. Pure and total: an empty log is an empty string, and
// re-running on the same log is byte-identical.
func Assemble(entries []storage.TranscriptEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(entry.Role)
		b.WriteString(": ")
		b.WriteString(entry.Text)
	}
	return b.String()
}
