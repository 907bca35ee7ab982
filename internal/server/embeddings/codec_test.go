package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "[]", Encode(nil))
	assert.Equal(t, "[]", Encode([]float32{}))
	assert.Equal(t, "[0.5,-1,0]", Encode([]float32{0.5, -1, 0}))
	assert.Equal(t, "[]", Encode([]float32{float32(math.NaN())}))
}

func TestDecode(t *testing.T) {
	vec, err := Decode("[0.5,-1,0]")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 0}, vec)

	vec, err = Decode("[]")
	require.NoError(t, err)
	assert.Empty(t, vec)

	vec, err = Decode("")
	require.NoError(t, err)
	assert.Empty(t, vec)

	_, err = Decode("not json")
	assert.Error(t, err)
}

func TestEncodeDecode_StableText(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out, err := Decode(Encode(in))
	require.NoError(t, err)
	assert.Equal(t, Encode(in), Encode(out))
}
