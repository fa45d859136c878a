package notify

import (
	"github.com/sbb-digital/go-rasta/logx"
	"github.com/sbb-digital/go-rasta/redundancy"
)

// LogAdapter is a reference Adapter that logs every event through an
// logx.Logger. It is the wiring default for cmd/rastad and for tests that
// need an Adapter without caring about its behavior.
type LogAdapter struct {
	log logx.Logger
}

// NewLogAdapter builds a LogAdapter; a nil log falls back to
// logx.NewDefaultLogger.
func NewLogAdapter(log logx.Logger) *LogAdapter {
	if log == nil {
		log = logx.NewDefaultLogger()
	}
	return &LogAdapter{log: log}
}

func (a *LogAdapter) MessageReceivedNotification(redChannelID uint32) {
	a.log.Debug("message received on redundancy channel %d", redChannelID)
}

func (a *LogAdapter) DiagnosticNotification(redChannelID, trChannelID uint32, diag redundancy.DiagnosticData) {
	a.log.Info("diagnostics red=%d tr=%d avg=%dms min=%dms max=%dms n=%d",
		redChannelID, trChannelID, diag.AverageDelayMs, diag.MinDelayMs, diag.MaxDelayMs, diag.SampleCount)
}

var _ Adapter = (*LogAdapter)(nil)
