package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageTokenRoundTrip(t *testing.T) {
	t.Run("encode then decode", func(t *testing.T) {
		cursor := pageCursor{
			CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			ID:        "entry-17",
		}

		token := encodePageToken(cursor)
		assert.NotEmpty(t, token)
		assert.NotContains(t, token, "=") // raw encoding, no padding

		decoded, err := decodePageToken(token)
		assert.NoError(t, err)
		assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
		assert.Equal(t, cursor.ID, decoded.ID)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := decodePageToken("!!not-base64!!")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "malformed nextToken")
	})

	t.Run("valid base64 of non-json is rejected", func(t *testing.T) {
		_, err := decodePageToken("bm90LWpzb24")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "malformed nextToken")
	})
}
