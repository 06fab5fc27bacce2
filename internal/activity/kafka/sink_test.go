package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygenie/internal/activity"
)

func TestToRecord(t *testing.T) {
	event := activity.Event{
		Timestamp:  time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		UserID:     "u1",
		Action:     activity.ActionUploadOrphaned,
		Subject:    "u1/1700000000000-abc.pdf",
		Attributes: map[string]string{"bucket": "study-materials"},
	}

	record, err := toRecord("studygenie.activity", event)
	require.NoError(t, err)
	assert.Equal(t, "studygenie.activity", record.Topic)
	assert.Equal(t, []byte("u1"), record.Key)
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "action", record.Headers[0].Key)
	assert.Equal(t, []byte("upload_orphaned"), record.Headers[0].Value)

	var decoded activity.Event
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, event, decoded)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, "topic")
	assert.ErrorContains(t, err, "no brokers")

	_, err = New([]string{"localhost:9092"}, "")
	assert.ErrorContains(t, err, "topic is required")
}
