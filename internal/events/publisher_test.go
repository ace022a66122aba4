package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()

	err := p.PublishSearchCompleted(context.Background(), SearchCompletedEvent{JobID: "job-1"})
	assert.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestSearchCompletedEvent_JSON(t *testing.T) {
	event := SearchCompletedEvent{
		JobID:         "job-1",
		SearchID:      42,
		UserTopic:     "telomeres and aging",
		FinalQuery:    "(telomere) AND (aging)",
		TotalFound:    120,
		FilteredCount: 15,
		CompletedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "job-1", decoded["job_id"])
	assert.Equal(t, float64(42), decoded["search_id"])
	assert.Equal(t, float64(120), decoded["total_found"])
	assert.Equal(t, float64(15), decoded["filtered_count"])
}
