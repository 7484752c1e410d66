package backup

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCriticalTables(t *testing.T) {
	doc := NewDocument(time.Now())
	doc.Tables["organizations"] = SuccessSnapshot([]Row{{"id": 7}})
	doc.Tables["kunder"] = SuccessSnapshot(nil)
	doc.Tables["avtaler"] = FailedSnapshot(errors.New("lock wait timeout"))

	t.Run("all present", func(t *testing.T) {
		missing, err := CheckCriticalTables(doc, []string{"organizations", "kunder"})
		assert.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("empty table counts as present", func(t *testing.T) {
		_, err := CheckCriticalTables(doc, []string{"kunder"})
		assert.NoError(t, err)
	})

	t.Run("missing and failed", func(t *testing.T) {
		missing, err := CheckCriticalTables(doc, []string{"users", "avtaler", "organizations", "users"})
		require.Error(t, err)
		assert.Equal(t, []string{"avtaler", "users"}, missing)
		assert.Contains(t, err.Error(), "critical tables missing or failed: avtaler, users")

		var backupErr *BackupError
		require.True(t, errors.As(err, &backupErr))
		assert.Equal(t, BackupErrorTypePartialData, backupErr.Type)
	})

	t.Run("no critical tables", func(t *testing.T) {
		missing, err := CheckCriticalTables(doc, nil)
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}
