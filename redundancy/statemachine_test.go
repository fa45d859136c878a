package redundancy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachine_StartsClosed(t *testing.T) {
	m := NewStateMachine()
	require.Equal(t, StateClosed, m.State())
}

func TestStateMachine_OpenTransitionsToUp(t *testing.T) {
	m := NewStateMachine()
	require.Equal(t, StateUp, m.Handle(EventOpen))
}

func TestStateMachine_ClosedIgnoresOtherEvents(t *testing.T) {
	m := NewStateMachine()
	require.Equal(t, StateClosed, m.Handle(EventReceiveData))
	require.Equal(t, StateClosed, m.Handle(EventSendData))
	require.Equal(t, StateClosed, m.Handle(EventDeferTimeout))
	require.Equal(t, StateClosed, m.Handle(EventClose))
}

func TestStateMachine_UpSelfTransitionsAndClose(t *testing.T) {
	m := NewStateMachine()
	m.Handle(EventOpen)

	require.Equal(t, StateUp, m.Handle(EventReceiveData))
	require.Equal(t, StateUp, m.Handle(EventSendData))
	require.Equal(t, StateUp, m.Handle(EventDeferTimeout))
	require.Equal(t, StateClosed, m.Handle(EventClose))
}
