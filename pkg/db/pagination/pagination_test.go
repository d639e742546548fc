package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Size(0))
	assert.Equal(t, DefaultPageSize, Size(-3))
	assert.Equal(t, 20, Size(20))
	assert.Equal(t, MaxPageSize, Size(1000))
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	token, err := EncodeCursor(NewCursor(42, at))
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	id, createdAt, err := cursor.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, at.Equal(createdAt))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	_, _, err = Cursor{ID: "x", CreatedAt: "2026-03-01T09:00:00Z"}.Position()
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

type row struct {
	id int64
}

func TestPage(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cursorOf := func(r *row) Cursor { return NewCursor(r.id, at) }
	rows := []*row{{id: 5}, {id: 4}, {id: 3}}

	kept, info := Page(rows, 2, cursorOf)
	require.Len(t, kept, 2)
	assert.True(t, info.HasMore)
	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "4", cursor.ID)

	kept, info = Page(rows[2:], 2, cursorOf)
	assert.Len(t, kept, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
