package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

// RelayerMetrics implements relayer.Observer and exports reserve levels.
type RelayerMetrics struct {
	outcomes    *prometheus.CounterVec
	settlements *prometheus.CounterVec
	available   *prometheus.GaugeVec
	reserved    *prometheus.GaugeVec
}

var _ relayer.Observer = (*RelayerMetrics)(nil)

func NewRelayerMetrics() *RelayerMetrics {
	return &RelayerMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_records_total",
				Help: "Submissions by record kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_settlement_attempts_total",
				Help: "Mint and payout attempts by record kind and result",
			},
			[]string{"kind", "result"},
		),
		available: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_reserve_available",
				Help: "Reserve available for payouts, in base units",
			},
			[]string{"asset"},
		),
		reserved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_reserve_reserved",
				Help: "Reserve held by in-flight payouts, in base units",
			},
			[]string{"asset"},
		),
	}
}

func (m *RelayerMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.outcomes, m.settlements, m.available, m.reserved)
}

func (m *RelayerMetrics) ObserveOutcome(kind model.RecordKind, outcome relayer.Outcome) {
	m.outcomes.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *RelayerMetrics) ObserveSettlement(kind model.RecordKind, result string) {
	m.settlements.WithLabelValues(string(kind), result).Inc()
}

func (m *RelayerMetrics) UpdateReserves(reserves []model.ReserveLedger) {
	for i := range reserves {
		asset := string(reserves[i].Asset)
		m.available.WithLabelValues(asset).Set(float64(reserves[i].Available()))
		m.reserved.WithLabelValues(asset).Set(float64(reserves[i].ReservedAmount))
	}
}
