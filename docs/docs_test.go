package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestRegisteredSpecIsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc()
	require.NoError(t, err)

	var spec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &spec))

	assert.Equal(t, "/api", spec["basePath"])
	paths := spec["paths"].(map[string]interface{})
	assert.Contains(t, paths, "/ai/generate-exercise")
	assert.Contains(t, paths, "/admin/providers/{id}/default")
}
