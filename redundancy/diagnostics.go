package redundancy

import "github.com/sbb-digital/go-rasta/raerr"

// DiagnosticData summarizes one transport channel's recent delivery
// timing, handed to notify.Adapter.DiagnosticNotification once the
// sliding window fills.
type DiagnosticData struct {
	TransportChannelID uint32
	AverageDelayMs      uint32
	MinDelayMs          uint32
	MaxDelayMs          uint32
	SampleCount         uint32
}

// transportWindow accumulates delay samples for one transport channel
// until NDiagnosis samples are collected, then reports and resets.
type transportWindow struct {
	id      uint32
	samples []uint32
}

func newTransportWindow(id uint32, nDiagnosis int) *transportWindow {
	return &transportWindow{id: id, samples: make([]uint32, 0, nDiagnosis)}
}

func (w *transportWindow) add(delayMs uint32, capacity int) (DiagnosticData, bool) {
	w.samples = append(w.samples, delayMs)
	if len(w.samples) < capacity {
		return DiagnosticData{}, false
	}

	var sum, min, max uint64
	min = uint64(w.samples[0])
	for _, s := range w.samples {
		sum += uint64(s)
		if uint64(s) < min {
			min = uint64(s)
		}
		if uint64(s) > max {
			max = uint64(s)
		}
	}
	data := DiagnosticData{
		TransportChannelID: w.id,
		AverageDelayMs:      uint32(sum / uint64(len(w.samples))),
		MinDelayMs:          uint32(min),
		MaxDelayMs:          uint32(max),
		SampleCount:         uint32(len(w.samples)),
	}
	w.samples = w.samples[:0]
	return data, true
}

// Diagnostics validates layer configuration and accumulates per
// transport-channel delay windows that flush into a DiagnosticData once
// every NDiagnosis samples.
type Diagnostics struct {
	cfg     Config
	nDiag   int
	windows map[uint32]*transportWindow
	valid   map[uint32]struct{}
}

// NewDiagnostics builds a Diagnostics tracker for cfg; call
// ValidateConfiguration before relying on IsTransportChannelIDValid.
func NewDiagnostics(cfg Config) *Diagnostics {
	d := &Diagnostics{
		cfg:     cfg,
		nDiag:   int(cfg.NDiagnosis),
		windows: make(map[uint32]*transportWindow),
		valid:   make(map[uint32]struct{}),
	}
	for _, rc := range cfg.RedundancyChannels {
		for _, trID := range rc.TransportChannelIDs {
			d.valid[trID] = struct{}{}
			d.windows[trID] = newTransportWindow(trID, d.nDiag)
		}
	}
	return d
}

// ValidateConfiguration checks cfg against the bounds every redundancy
// layer deployment must respect, returning InvalidConfiguration with a
// descriptive detail on the first violation found.
func ValidateConfiguration(cfg Config) error {
	if cfg.TSeqMs < TSeqMsMin || cfg.TSeqMs > TSeqMsMax {
		return raerr.Newf(raerr.InvalidConfiguration, "t_seq %d out of range [%d,%d]", cfg.TSeqMs, TSeqMsMin, TSeqMsMax)
	}
	if cfg.NDiagnosis < NDiagnosisMin || cfg.NDiagnosis > NDiagnosisMax {
		return raerr.Newf(raerr.InvalidConfiguration, "n_diagnosis %d out of range [%d,%d]", cfg.NDiagnosis, NDiagnosisMin, NDiagnosisMax)
	}
	if cfg.NDeferQueueSize < NDeferQueueSizeMin || cfg.NDeferQueueSize > NDeferQueueSizeMax {
		return raerr.Newf(raerr.InvalidConfiguration, "n_defer_queue_size %d out of range [%d,%d]", cfg.NDeferQueueSize, NDeferQueueSizeMin, NDeferQueueSizeMax)
	}
	if len(cfg.RedundancyChannels) < RedundancyChannelsMin || len(cfg.RedundancyChannels) > RedundancyChannelsMax {
		return raerr.Newf(raerr.InvalidConfiguration, "redundancy channel count %d out of range [%d,%d]", len(cfg.RedundancyChannels), RedundancyChannelsMin, RedundancyChannelsMax)
	}
	if !cfg.CheckCodeType.Valid() {
		return raerr.Newf(raerr.InvalidConfiguration, "invalid check code type %d", int(cfg.CheckCodeType))
	}
	seenRed := make(map[uint32]struct{})
	seenTr := make(map[uint32]struct{})
	for _, rc := range cfg.RedundancyChannels {
		if _, dup := seenRed[rc.RedChannelID]; dup {
			return raerr.Newf(raerr.InvalidConfiguration, "duplicate redundancy channel id %d", rc.RedChannelID)
		}
		seenRed[rc.RedChannelID] = struct{}{}

		n := len(rc.TransportChannelIDs)
		if n < TransportChannelsPerRedMin || n > TransportChannelsPerRedMax {
			return raerr.Newf(raerr.InvalidConfiguration, "redundancy channel %d has %d transport channels, want [%d,%d]", rc.RedChannelID, n, TransportChannelsPerRedMin, TransportChannelsPerRedMax)
		}
		for _, trID := range rc.TransportChannelIDs {
			if _, dup := seenTr[trID]; dup {
				return raerr.Newf(raerr.InvalidConfiguration, "duplicate transport channel id %d", trID)
			}
			seenTr[trID] = struct{}{}
		}
	}
	for i := range cfg.RedundancyChannels {
		if _, ok := seenRed[uint32(i)]; !ok {
			return raerr.Newf(raerr.InvalidConfiguration, "redundancy channel ids must be contiguous from 0, missing %d", i)
		}
	}
	return nil
}

// IsTransportChannelIDValid reports whether trID belongs to a configured
// redundancy channel.
func (d *Diagnostics) IsTransportChannelIDValid(trID uint32) bool {
	_, ok := d.valid[trID]
	return ok
}

// RecordDelay feeds one observed delivery delay for trID into its
// sliding window. The second return is true exactly when the window
// just filled and data is the diagnostic report to publish.
func (d *Diagnostics) RecordDelay(trID uint32, delayMs uint32) (DiagnosticData, bool) {
	w, ok := d.windows[trID]
	if !ok {
		return DiagnosticData{}, false
	}
	return w.add(delayMs, d.nDiag)
}
