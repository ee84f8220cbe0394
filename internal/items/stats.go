package items

import (
	"math"

	"doable/internal/models"
)

// Statistics are derived from the cached snapshot and never persisted.
type Statistics struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	CompletionRate int `json:"completionRate"`
}

func computeStatistics(items []models.Item) Statistics {
	stats := Statistics{Total: len(items)}
	for _, item := range items {
		if item.Completed {
			stats.Completed++
		}
	}
	stats.Pending = stats.Total - stats.Completed
	if stats.Total > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	}
	return stats
}
