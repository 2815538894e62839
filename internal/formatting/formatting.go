package formatting

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aonescu/shopkeeper/internal/types"
)

// DefaultDiagnosticLimit bounds diagnostic text written to the audit log.
const DefaultDiagnosticLimit = 512

const truncationMarker = "... (truncated)"

// TruncateDiagnostic trims surrounding whitespace from raw tool output and cuts
// it to at most max bytes, without splitting a UTF-8 sequence.
func TruncateDiagnostic(raw string, max int) string {
	s := strings.TrimSpace(raw)
	if max <= 0 || len(s) <= max {
		return s
	}

	cut := max - len(truncationMarker)
	if cut <= 0 {
		return s[:max]
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

// Summary counts stores by status.
type Summary struct {
	Total        int `json:"total"`
	Ready        int `json:"ready"`
	Provisioning int `json:"provisioning"`
}

func GenerateSummary(stores []types.Store) Summary {
	summary := Summary{Total: len(stores)}
	for _, s := range stores {
		switch s.Status {
		case types.StatusReady:
			summary.Ready++
		default:
			summary.Provisioning++
		}
	}
	return summary
}

// FormatSummary renders a one-line summary for logs.
func FormatSummary(s Summary) string {
	return fmt.Sprintf("%d stores (%d ready, %d provisioning)", s.Total, s.Ready, s.Provisioning)
}
