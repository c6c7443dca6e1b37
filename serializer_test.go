package relaymq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := JSONSerializer{}
	body, err := s.Encode(map[string]interface{}{"a": 1})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, s.Decode(body, &out))
	assert.Equal(t, float64(1), out["a"])
	assert.Equal(t, "application/json", s.ContentType())
}
