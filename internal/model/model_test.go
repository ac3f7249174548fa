package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrderAndText(t *testing.T) {
	t.Parallel()

	assert.Less(t, PriorityLow, PriorityNormal)
	assert.Less(t, PriorityNormal, PriorityHigh)
	assert.Less(t, PriorityHigh, PriorityUrgent)

	data, err := json.Marshal(struct {
		P Priority `json:"p"`
	}{PriorityUrgent})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"urgent"}`, string(data))

	var out struct {
		P Priority `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p":"HIGH"}`), &out))
	assert.Equal(t, PriorityHigh, out.P)

	assert.Error(t, json.Unmarshal([]byte(`{"p":"critical"}`), &out))

	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)
}

func TestPushPayloadEncodeCapsSize(t *testing.T) {
	t.Parallel()

	t.Run("small payload is untouched", func(t *testing.T) {
		t.Parallel()
		p := PushPayload{Title: "Nuovo incarico", Body: "Via Roma 12", Priority: PriorityHigh}
		data, err := p.Encode()
		require.NoError(t, err)

		var decoded PushPayload
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, p.Body, decoded.Body)
	})

	t.Run("oversized body is truncated", func(t *testing.T) {
		t.Parallel()
		p := PushPayload{Title: "Scadenza", Body: strings.Repeat("è", 5000)}
		data, err := p.Encode()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), MaxPushPayloadBytes)

		var decoded PushPayload
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, strings.HasSuffix(decoded.Body, "…"))
		assert.Equal(t, "Scadenza", decoded.Title)
	})

	t.Run("oversized url is rejected", func(t *testing.T) {
		t.Parallel()
		p := PushPayload{
			Title: "Scadenza",
			Body:  "Via Roma 12",
			URL:   "https://x/" + strings.Repeat("a", 5000),
		}
		data, err := p.Encode()
		require.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.Nil(t, data)
	})
}

func TestPushPayloadFor(t *testing.T) {
	t.Parallel()

	job := "job-7"
	n := &Notification{ID: uuid.New(), Type: TypeNewAssignment, Title: "t", Body: "b", RelatedJobID: &job}
	p := PushPayloadFor(n, "/icon.png", "https://app.example")
	assert.Equal(t, "https://app.example/jobs/job-7", p.URL)
	require.NotNil(t, p.NotificationID)
	assert.Equal(t, n.ID, *p.NotificationID)
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(&JobCreatePayload{BuildingID: "b-1", Title: "Verifica ascensore"})
	require.NoError(t, err)

	p, err := DecodePayload(KindJobCreate, raw)
	require.NoError(t, err)
	job, ok := p.(*JobCreatePayload)
	require.True(t, ok)
	assert.Equal(t, "b-1", job.BuildingID)

	_, err = DecodePayload("video_upload", raw)
	assert.Error(t, err)
}

func TestPendingCountsString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1 item pending sync", PendingCounts{Photos: 1}.String())
	assert.Equal(t, "5 items pending sync", PendingCounts{Jobs: 2, Photos: 3}.String())
}
