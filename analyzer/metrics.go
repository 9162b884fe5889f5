package analyzer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// packetsPushed counts packets handed to an analyzer sink's Push,
	// including ones later dropped by an attached filter.
	packetsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packetcore_analyzer_packets_pushed_total",
		Help: "Packets handed to an analyzer sink's Push.",
	}, []string{"worker"})

	// packetsDropped counts packets dropped because no result was
	// installed (the sink is stopped).
	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packetcore_analyzer_packets_dropped_total",
		Help: "Packets dropped by an analyzer sink because no result was installed.",
	}, []string{"worker"})

	// flowsActive reports the current flow count per worker shard.
	flowsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "packetcore_analyzer_flows_active",
		Help: "Current number of tracked flows per analyzer worker shard.",
	}, []string{"worker"})
)
