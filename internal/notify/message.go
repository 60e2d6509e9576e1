package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sileric/mbwatch/internal/backfill"
)

// FormatBackfillMessage creates a backfill pass summary body.
func FormatBackfillMessage(result *backfill.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Labels: %d\n", result.Labels))
	sb.WriteString(fmt.Sprintf("Requested: %d items\n", result.Requested))
	sb.WriteString(fmt.Sprintf("Replaced: %d entries\n", result.Replaced))
	if result.FailedBatches > 0 {
		sb.WriteString(fmt.Sprintf("Failed batches: %d\n", result.FailedBatches))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Millisecond)))

	if len(result.Errors) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := len(result.Errors)
		if limit > 5 {
			limit = 5
		}
		for _, e := range result.Errors[:limit] {
			sb.WriteString("- " + e + "\n")
		}
		if len(result.Errors) > limit {
			sb.WriteString(fmt.Sprintf("... and %d more", len(result.Errors)-limit))
		}
	}

	return sb.String()
}
