package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerators(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() (string, error)
		prefix string
		length int
	}{
		{"post", GeneratePostID, PostPrefix, 16},
		{"temp post", GenerateTempPostID, TempPostPrefix, 12},
		{"session", GenerateSessionID, SessionPrefix, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.gen()
			require.NoError(t, err)
			assert.True(t, ValidateIDFormat(id, tt.prefix), id)
			assert.Len(t, id, len(tt.prefix)+1+tt.length)

			other, err := tt.gen()
			require.NoError(t, err)
			assert.NotEqual(t, id, other)
		})
	}
}

func TestValidateIDFormat(t *testing.T) {
	assert.True(t, IsTempPostID("tmp_abc-DEF_123"))
	assert.False(t, IsTempPostID("tmp_"))
	assert.False(t, IsTempPostID("post_abc"))
	assert.False(t, ValidateIDFormat("fs_abc!", SessionPrefix))
}
