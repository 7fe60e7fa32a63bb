package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "drilldocs"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "document_commits_total", Help: "Committed saves by kind (created, updated)."},
		[]string{"kind"},
	)
	RevisionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "revisions_evicted_total", Help: "Revision snapshots dropped by the per-document cap."},
	)
	CorruptPayloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "corrupt_payloads_total", Help: "Stored payloads discarded because they could not be decoded."},
		[]string{"key_kind"},
	)
	DraftOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "draft_operations_total", Help: "Draft slot operations by kind (saved, restored, discarded)."},
		[]string{"op"},
	)
	LinkResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "link_resolutions_total", Help: "Document-link resolutions by outcome (resolved, broken)."},
		[]string{"outcome"},
	)
	Imports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "imports_total", Help: "Import attempts by converter and outcome."},
		[]string{"converter", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentCommits)
	reg.MustRegister(RevisionsEvicted)
	reg.MustRegister(CorruptPayloads)
	reg.MustRegister(DraftOps)
	reg.MustRegister(LinkResolutions)
	reg.MustRegister(Imports)
}
