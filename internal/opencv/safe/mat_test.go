package safe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMatCloseIsIdempotent(t *testing.T) {
	before := Live()

	mat, err := NewBGR(6, 4, "test")
	require.NoError(t, err)
	assert.Equal(t, before+1, Live())

	assert.True(t, mat.IsValid())
	assert.Equal(t, 4, mat.Rows())
	assert.Equal(t, 6, mat.Cols())
	assert.Equal(t, 3, mat.Channels())
	assert.Equal(t, "test", mat.Tag())
	require.NoError(t, Check(mat, "test"))

	mat.Close()
	mat.Close()

	assert.Equal(t, before, Live())
	assert.False(t, mat.IsValid())
	assert.True(t, mat.Empty())
	assert.Zero(t, mat.Rows())
	assert.ErrorIs(t, Check(mat, "test"), ErrInvalidMat)
}

func TestNewMatRejectsBadSize(t *testing.T) {
	_, err := NewMat(0, 3, gocv.MatTypeCV8UC3, "bad")
	assert.ErrorIs(t, err, ErrDimensions)

	_, err = Adopt(gocv.NewMat(), "empty")
	assert.ErrorIs(t, err, ErrInvalidMat)

	assert.ErrorIs(t, Check(nil, "nil"), ErrInvalidMat)
}

func TestValidateDimensions(t *testing.T) {
	assert.NoError(t, ValidateDimensions(1, 1, "ok"))
	assert.NoError(t, ValidateDimensions(MaxDimension, 10, "ok"))
	assert.ErrorIs(t, ValidateDimensions(0, 10, "zero"), ErrDimensions)
	assert.ErrorIs(t, ValidateDimensions(MaxDimension+1, 10, "huge"), ErrDimensions)
}
