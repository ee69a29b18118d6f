package invoices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNext_TransitionMatrix(t *testing.T) {
	statuses := []Status{StatusDraft, StatusSent, StatusPaid, StatusCanceled, StatusDeleted}

	valid := map[Status]map[Action]Status{
		StatusDraft: {ActionSend: StatusSent, ActionDelete: StatusDeleted},
		StatusSent:  {ActionPay: StatusPaid, ActionCancel: StatusDraft},
	}

	for _, current := range statuses {
		for _, action := range Actions {
			next, ok := Next(current, action)
			want, wantOK := valid[current][action]
			if wantOK {
				require.True(t, ok, "%s on %s", action, current)
				require.Equal(t, want, next, "%s on %s", action, current)
				continue
			}
			require.False(t, ok, "%s on %s", action, current)
			require.Equal(t, current, next, "%s on %s leaves status unchanged", action, current)
		}
	}
}

func TestNext_CancelReturnsToDraft(t *testing.T) {
	next, ok := Next(StatusSent, ActionCancel)
	require.True(t, ok)
	require.Equal(t, StatusDraft, next)
	require.NotEqual(t, StatusCanceled, next)
}

func TestNext_UnknownAction(t *testing.T) {
	next, ok := Next(StatusDraft, Action("archive"))
	require.False(t, ok)
	require.Equal(t, StatusDraft, next)
	require.False(t, Action("archive").Valid())
}

func TestStatus_Editable(t *testing.T) {
	require.True(t, StatusDraft.Editable())
	require.True(t, StatusSent.Editable())
	require.False(t, StatusPaid.Editable())
	require.False(t, StatusDeleted.Editable())
	require.False(t, StatusCanceled.Editable())
}
