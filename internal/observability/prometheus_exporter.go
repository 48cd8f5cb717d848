package observability

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/softrobotics/wizard/internal/eventbus"
)

// CounterProvider exposes the state store's named counters.
type CounterProvider interface {
	Counters() map[string]int64
}

// FrameDropProvider exposes the video transport's dropped-frame count.
type FrameDropProvider interface {
	FramesDropped() uint64
}

// PrometheusExporter renders console metrics in Prometheus text format.
type PrometheusExporter struct {
	bus     *eventbus.Bus
	counter *EventCounter
	store   CounterProvider
	video   FrameDropProvider
}

// NewPrometheusExporter constructs an exporter backed by the provided bus and event counter.
func NewPrometheusExporter(bus *eventbus.Bus, counter *EventCounter) *PrometheusExporter {
	return &PrometheusExporter{bus: bus, counter: counter}
}

// WithStoreCounters enables exporting the state store counter map.
func (e *PrometheusExporter) WithStoreCounters(provider CounterProvider) {
	e.store = provider
}

// WithVideoMetrics enables exporting the video transport drop counter.
func (e *PrometheusExporter) WithVideoMetrics(provider FrameDropProvider) {
	e.video = provider
}

// Export produces the metrics payload in Prometheus' text exposition format.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer

	e.writeEventCounters(&buf)
	e.writeBusMetrics(&buf)
	e.writeStoreCounters(&buf)
	e.writeVideoMetrics(&buf)

	return buf.Bytes()
}

func (e *PrometheusExporter) writeEventCounters(buf *bytes.Buffer) {
	if e.counter == nil {
		return
	}

	counts := e.counter.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("# HELP wizard_eventbus_events_total Total number of published events per topic.\n")
	buf.WriteString("# TYPE wizard_eventbus_events_total counter\n")

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, string(topic))
	}
	sort.Strings(topics)
	for _, topicName := range topics {
		value := counts[eventbus.Topic(topicName)]
		buf.WriteString(fmt.Sprintf("wizard_eventbus_events_total{topic=%q} %d\n", topicName, value))
	}
}

func (e *PrometheusExporter) writeBusMetrics(buf *bytes.Buffer) {
	if e.bus == nil {
		return
	}

	metrics := e.bus.Metrics()

	buf.WriteString("# HELP wizard_eventbus_publish_total Total number of events published on the bus.\n")
	buf.WriteString("# TYPE wizard_eventbus_publish_total counter\n")
	buf.WriteString(fmt.Sprintf("wizard_eventbus_publish_total %d\n", metrics.PublishTotal))

	buf.WriteString("# HELP wizard_eventbus_dropped_total Total number of events dropped by the bus.\n")
	buf.WriteString("# TYPE wizard_eventbus_dropped_total counter\n")
	buf.WriteString(fmt.Sprintf("wizard_eventbus_dropped_total %d\n", metrics.DroppedTotal))
}

func (e *PrometheusExporter) writeStoreCounters(buf *bytes.Buffer) {
	if e.store == nil {
		return
	}

	counters := e.store.Counters()
	if len(counters) == 0 {
		return
	}

	buf.WriteString("# HELP wizard_console_counter Console state counters.\n")
	buf.WriteString("# TYPE wizard_console_counter counter\n")

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		buf.WriteString(fmt.Sprintf("wizard_console_counter{name=%q} %d\n", name, counters[name]))
	}
}

func (e *PrometheusExporter) writeVideoMetrics(buf *bytes.Buffer) {
	if e.video == nil {
		return
	}

	buf.WriteString("# HELP wizard_video_frames_dropped_total Total number of malformed video frames dropped.\n")
	buf.WriteString("# TYPE wizard_video_frames_dropped_total counter\n")
	buf.WriteString(fmt.Sprintf("wizard_video_frames_dropped_total %d\n", e.video.FramesDropped()))
}
