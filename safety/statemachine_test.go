package safety

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachine_HandshakeLifecycle(t *testing.T) {
	m := NewStateMachine(3)
	require.Equal(t, StateClosed, m.State())

	require.Equal(t, StateDown, m.Handle(EventOpen))
	require.Equal(t, StateStart, m.Handle(EventOpen))
	require.Equal(t, StateUp, m.Handle(EventConnRespReceived))
}

func TestStateMachine_UpSelfTransitions(t *testing.T) {
	m := NewStateMachine(3)
	m.Handle(EventOpen)
	m.Handle(EventOpen)
	m.Handle(EventConnRespReceived)

	require.Equal(t, StateUp, m.Handle(EventReceivedData))
	require.Equal(t, StateUp, m.Handle(EventSendData))
	require.Equal(t, StateUp, m.Handle(EventRetrReqReceived))
	require.Equal(t, StateUp, m.Handle(EventRetrRespReceived))
}

func TestStateMachine_HeartbeatTimeoutEscalatesToClosed(t *testing.T) {
	m := NewStateMachine(2)
	m.Handle(EventOpen)
	m.Handle(EventOpen)
	m.Handle(EventConnRespReceived)

	require.Equal(t, StateUp, m.Handle(EventHeartbeatTimeout))
	require.Equal(t, StateUp, m.Handle(EventHeartbeatTimeout))
	require.Equal(t, StateClosed, m.Handle(EventHeartbeatTimeout))
}

func TestStateMachine_CloseFromUp(t *testing.T) {
	m := NewStateMachine(3)
	m.Handle(EventOpen)
	m.Handle(EventOpen)
	m.Handle(EventConnRespReceived)

	require.Equal(t, StateClosed, m.Handle(EventClose))
}

func TestStateMachine_ProtocolErrorFromStart(t *testing.T) {
	m := NewStateMachine(3)
	m.Handle(EventOpen)
	m.Handle(EventOpen)
	require.Equal(t, StateStart, m.State())
	require.Equal(t, StateClosed, m.Handle(EventProtocolError))
}
