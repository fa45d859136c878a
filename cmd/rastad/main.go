// Command rastad is a minimal demo process wiring the platform adapter,
// UDP transport channels, RedCore and the SrInterface facade together and
// driving Tick on a fixed interval. It is the only place in this module a
// goroutine loop exists; it never calls into the core from more than one
// goroutine at a time, preserving the single-owner concurrency rule every
// other package assumes.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sbb-digital/go-rasta/checkcode"
	"github.com/sbb-digital/go-rasta/logx"
	"github.com/sbb-digital/go-rasta/md4"
	"github.com/sbb-digital/go-rasta/notify"
	"github.com/sbb-digital/go-rasta/platform"
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/rasta"
	"github.com/sbb-digital/go-rasta/redundancy"
	"github.com/sbb-digital/go-rasta/safety"
	"github.com/sbb-digital/go-rasta/transport"
	"github.com/sbb-digital/go-rasta/transport/udp"
)

// fatalCode recovers the raerr.Code behind err, if any, so startup
// failures reach the platform's fatal sink under their real code instead
// of a generic one.
func fatalCode(err error) raerr.Code {
	if e, ok := err.(*raerr.Error); ok {
		return e.Code
	}
	return raerr.InternalError
}

func main() {
	var (
		localID     = flag.Uint("local-id", 1, "local connection id")
		peerID      = flag.Uint("peer-id", 2, "peer connection id")
		listenAddrs = flag.String("listen", "127.0.0.1:8100", "comma-separated host:port list, one per transport channel")
		peerAddrs   = flag.String("peer", "", "comma-separated host:port list, one per transport channel (dial mode); empty to listen-only")
		logLevel    = flag.String("log-level", "info", "debug|info|warn|error")
		tickMs      = flag.Uint("tick-ms", 20, "Tick interval in milliseconds")
		heartbeatMs = flag.Uint("heartbeat-ms", 1000, "heartbeat interval in milliseconds")
	)
	flag.Parse()

	log := logx.NewLogger(*logLevel)
	plat := platform.NewDefault(log)

	listen := strings.Split(*listenAddrs, ",")
	var peers []string
	if *peerAddrs != "" {
		peers = strings.Split(*peerAddrs, ",")
	}

	trChannels := make(map[uint32]transport.Channel, len(listen))
	trIDs := make([]uint32, 0, len(listen))
	for i, addr := range listen {
		trID := uint32(i + 1)
		opts := []udp.Option{udp.WithLogger(log)}
		var ch *udp.Channel
		var err error
		if i < len(peers) && peers[i] != "" {
			ch, err = udp.Dial(trID, peers[i], opts...)
		} else {
			ch, err = udp.Listen(trID, addr, opts...)
		}
		if err != nil {
			plat.FatalError(fatalCode(err), fmt.Sprintf("open transport channel %d: %v", trID, err))
		}
		defer ch.Close()
		trChannels[trID] = ch
		trIDs = append(trIDs, trID)
	}

	// A single rastad process always runs one redundancy channel, so its
	// id is fixed at 0 regardless of the operator-chosen connection id.
	const redChannelID = uint32(0)
	redCfg := redundancy.Config{
		CheckCodeType:   checkcode.B,
		TSeqMs:          100,
		NDiagnosis:      10,
		NDeferQueueSize: 4,
		RedundancyChannels: []redundancy.ChannelConfig{
			{RedChannelID: redChannelID, TransportChannelIDs: trIDs},
		},
	}

	core := redundancy.NewCore(notify.NewLogAdapter(log), plat.TimerValueMs, trChannels, plat)
	if err := core.Init(redCfg); err != nil {
		plat.FatalError(fatalCode(err), fmt.Sprintf("init redundancy core: %v", err))
	}

	iface := rasta.NewInterface(core, plat, loggingDataAdapter{log: log})

	safetyCfg := safety.Config{IV: md4.DefaultIV, SafetyCodeType: safety.SafetyCode8}
	if err := iface.OpenConnection(redChannelID, uint32(*localID), uint32(*peerID), safetyCfg, uint32(*heartbeatMs)); err != nil {
		plat.FatalError(fatalCode(err), fmt.Sprintf("open connection: %v", err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(*tickMs) * time.Millisecond)
	defer ticker.Stop()

	log.Info("rastad up: local=%d peer=%d redChannel=%d transportChannels=%v", *localID, *peerID, redChannelID, trIDs)

	for {
		select {
		case <-sig:
			log.Info("rastad shutting down")
			if err := iface.Close(uint32(*localID)); err != nil {
				log.Warn("close connection: %v", err)
			}
			return
		case <-ticker.C:
			if err := iface.Tick(); err != nil {
				log.Error("tick: %v", err)
			}
		}
	}
}

// loggingDataAdapter is the demo's DataAdapter: it just logs delivered
// application payloads. A real integration replaces this with whatever
// consumes the decoded stream.
type loggingDataAdapter struct {
	log logx.Logger
}

func (a loggingDataAdapter) ApplicationMessageReceived(connectionID uint32, payload []byte) {
	a.log.Info("connection %d delivered %d byte payload (%s)", connectionID, len(payload), strconv.Quote(previewPayload(payload)))
}

func previewPayload(payload []byte) string {
	const max = 32
	if len(payload) <= max {
		return string(payload)
	}
	return string(payload[:max]) + "..."
}
