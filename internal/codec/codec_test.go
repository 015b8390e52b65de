package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID        string         `json:"id" cbor:"id"`
	FetchedAt time.Time      `json:"fetchedAt" cbor:"fetchedAt"`
	Fields    map[string]any `json:"fields" cbor:"fields"`
}

func TestCodecs(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	in := sample{ID: "b1", FetchedAt: at, Fields: map[string]any{"status": "confirmed"}}

	for name, c := range map[string]Codec{"json": JSON{}, "cbor": NewCBOR()} {
		t.Run(name, func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in.ID, out.ID)
			assert.True(t, in.FetchedAt.Equal(out.FetchedAt))
			assert.Equal(t, "confirmed", out.Fields["status"])

			var buf bytes.Buffer
			require.NoError(t, c.NewEncoder(&buf).Encode(in))
			var streamed sample
			require.NoError(t, c.NewDecoder(&buf).Decode(&streamed))
			assert.Equal(t, in.ID, streamed.ID)
		})
	}
}

func TestCBORDecodesStringKeyedMaps(t *testing.T) {
	c := NewCBOR()
	data, err := c.Marshal(map[string]any{"nested": map[string]any{"a": 1}})
	require.NoError(t, err)

	var out any
	require.NoError(t, c.Unmarshal(data, &out))
	m, ok := out.(map[string]any)
	require.True(t, ok)
	_, ok = m["nested"].(map[string]any)
	assert.True(t, ok)
}
