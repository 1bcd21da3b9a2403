package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorres47/practice-tracker/internal/practice"
)

func TestLoadEmbedded(t *testing.T) {
	require.NoError(t, Load())
	ps := Practices()
	require.NotEmpty(t, ps)
	assert.Equal(t, "Niệm Phật", ps[0].Name)
}

func TestLoadDedupesAndTrims(t *testing.T) {
	t.Cleanup(func() { _ = Load() })

	require.NoError(t, load([]byte(`{"practices":[" a ","a","","b"]}`)))
	assert.Equal(t, []practice.Practice{{Name: "a"}, {Name: "b"}}, Practices())
}

func TestLoadRejectsBadJSON(t *testing.T) {
	assert.Error(t, load([]byte(`{`)))
}

func TestOrDefault(t *testing.T) {
	require.NoError(t, Load())
	own := []practice.Practice{{Name: "x"}}
	assert.Equal(t, own, OrDefault(own))
	assert.Equal(t, Practices(), OrDefault(nil))
}
