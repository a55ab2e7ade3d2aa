package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	sessionsActive    prometheus.Gauge
	watchLegsActive   prometheus.Gauge
	playbacksActive   prometheus.Gauge

	messagesTotal *prometheus.CounterVec
	denialsTotal  prometheus.Counter
	closesTotal   *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appserver_connections_active",
			Help: "Authenticated websocket connections currently open",
		}),

		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appserver_recording_sessions_active",
			Help: "Recording sessions currently live",
		}),

		watchLegsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appserver_watch_legs_active",
			Help: "Live watch legs currently attached",
		}),

		playbacksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appserver_playback_sessions_active",
			Help: "Playback sessions currently open",
		}),

		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "appserver_messages_total",
			Help: "Inbound signaling messages by event",
		}, []string{"event"}),

		denialsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "appserver_authorization_denials_total",
			Help: "Messages rejected by the authorization policy",
		}),

		closesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "appserver_connection_closes_total",
			Help: "Connection closes by reason",
		}, []string{"reason"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() { p.connectionsActive.Inc() }
func (p *PrometheusCollector) ConnectionClosed() { p.connectionsActive.Dec() }
func (p *PrometheusCollector) SessionStarted()   { p.sessionsActive.Inc() }
func (p *PrometheusCollector) SessionStopped()   { p.sessionsActive.Dec() }
func (p *PrometheusCollector) WatchLegAttached() { p.watchLegsActive.Inc() }
func (p *PrometheusCollector) WatchLegDetached() { p.watchLegsActive.Dec() }
func (p *PrometheusCollector) PlaybackStarted()  { p.playbacksActive.Inc() }
func (p *PrometheusCollector) PlaybackStopped()  { p.playbacksActive.Dec() }
func (p *PrometheusCollector) DenialRecorded()   { p.denialsTotal.Inc() }

func (p *PrometheusCollector) MessageReceived(event string) {
	p.messagesTotal.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) CloseRecorded(reason string) {
	p.closesTotal.WithLabelValues(reason).Inc()
}
