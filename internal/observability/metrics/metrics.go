package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the reservation flow.
type BookingMetrics struct {
	reserveTotal   *prometheus.CounterVec
	confirmTotal   *prometheus.CounterVec
	otpFailures    *prometheus.CounterVec
	lockContention prometheus.Counter
	reapedTotal    prometheus.Counter
	opLatency      *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reserveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reserve",
			Subsystem: "booking",
			Name:      "reserve_total",
			Help:      "Total RequestBooking calls by outcome",
		}, []string{"outcome"}),
		confirmTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reserve",
			Subsystem: "booking",
			Name:      "confirm_total",
			Help:      "Total ConfirmBooking calls by outcome",
		}, []string{"outcome"}),
		otpFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reserve",
			Subsystem: "booking",
			Name:      "otp_failures_total",
			Help:      "OTP verification failures by reason",
		}, []string{"reason"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reserve",
			Subsystem: "booking",
			Name:      "lock_contention_total",
			Help:      "TryAcquire calls that lost to a live claim",
		}),
		reapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reserve",
			Subsystem: "reaper",
			Name:      "expired_total",
			Help:      "Reservations expired by the reaper",
		}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reserve",
			Subsystem: "booking",
			Name:      "operation_latency_seconds",
			Help:      "Latency of booking service operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reserveTotal, m.confirmTotal, m.otpFailures,
		m.lockContention, m.reapedTotal, m.opLatency)
	return m
}

func (m *BookingMetrics) ObserveReserve(outcome string) {
	if m == nil {
		return
	}
	m.reserveTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveConfirm(outcome string) {
	if m == nil {
		return
	}
	m.confirmTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveOTPFailure(reason string) {
	if m == nil {
		return
	}
	m.otpFailures.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *BookingMetrics) ObserveReaped(count int) {
	if m == nil {
		return
	}
	m.reapedTotal.Add(float64(count))
}

func (m *BookingMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.opLatency.WithLabelValues(operation).Observe(seconds)
}
