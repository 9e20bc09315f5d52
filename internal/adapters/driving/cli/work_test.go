package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

func TestWorkCmd_Once(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCLI("work", "--once", "-c", "4", "--types", "semantic_index,entity_extract")

	require.NoError(t, err)
	assert.True(t, ts.worker.ranOnce)
	assert.False(t, ts.worker.ran)
	assert.Equal(t, 4, ts.workerOpts.Concurrency)
	assert.Equal(t, []domain.TaskType{domain.TaskSemanticIndex, domain.TaskEntityExtract}, ts.workerOpts.Types)
	assert.Contains(t, out, "Claimed: 3  Completed: 2  Failed: 1")
}

func TestWorkCmd_Run(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCLI("work")

	require.NoError(t, err)
	assert.True(t, ts.worker.ran)
	assert.Contains(t, out, "Worker running")
}

func TestWorkCmd_UnknownType(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCLI("work", "--once", "--types", "ocr")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown task type "ocr"`)
	assert.False(t, ts.worker.ranOnce)
}

func TestWorkCmd_OnceAndFollowConflict(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCLI("work", "--once", "--follow")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be combined")
}
