package workspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

func TestDefaultWorkspaceExistsAndActive(t *testing.T) {
	r := NewRegistry()
	ws := r.ActiveWorkspace()
	require.True(t, ws.IsDefault())
	require.Equal(t, models.WorkspaceActive, ws.State)
}

func TestDefaultWorkspaceCannotBeArchivedOrDeleted(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Archive(models.DefaultWorkspaceName), ErrDefaultImmutable)
	require.ErrorIs(t, r.SoftDelete(models.DefaultWorkspaceName), ErrDefaultImmutable)
}

func TestCreateAndActivateWorkspace(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("staging", "be terse")
	require.NoError(t, err)

	require.NoError(t, r.Activate("staging"))
	require.Equal(t, "staging", r.ActiveWorkspace().Name)
}

func TestActivateUnknownWorkspaceFails(t *testing.T) {
	r := NewRegistry()
	var notFound *ErrNotFound
	require.ErrorAs(t, r.Activate("nope"), &notFound)
}

func TestSoftDeleteThenRecover(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("temp", "")
	require.NoError(t, err)
	require.NoError(t, r.SoftDelete("temp"))

	archived := r.Archived()
	require.Len(t, archived, 1)

	require.NoError(t, r.Recover("temp"))
	require.Empty(t, r.Archived())
}

func TestExactlyOneCurrentSession(t *testing.T) {
	r := NewRegistry()
	s1 := r.CurrentSession()
	s2 := r.CurrentSession()
	require.Equal(t, s1.ID, s2.ID)
}
