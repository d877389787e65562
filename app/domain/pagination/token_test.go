package pagination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchToken_AbortIsIdempotent(t *testing.T) {
	tok := newFetchToken(context.Background(), 1)

	tok.Abort()
	tok.Abort()

	assert.True(t, tok.Aborted())
	assert.ErrorIs(t, tok.ctx.Err(), context.Canceled)

	var nilTok *fetchToken
	assert.NotPanics(t, nilTok.Abort)
}

func TestFetchToken_AbortAfterCompletionIsNoop(t *testing.T) {
	tok := newFetchToken(context.Background(), 1)
	tok.release()
	tok.Abort()
	assert.True(t, tok.Aborted())
}

func TestCursorRoundTrip(t *testing.T) {
	c := time.Date(2024, 5, 1, 11, 59, 59, 123456789, time.UTC)

	decoded, err := DecodeCursor(EncodeCursor(&c))
	require.NoError(t, err)
	assert.True(t, decoded.Equal(c))

	none, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, "", EncodeCursor(nil))

	_, err = DecodeCursor("yesterday")
	assert.Error(t, err)
}
