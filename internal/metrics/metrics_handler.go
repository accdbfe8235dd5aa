package metrics

import (
	"sync"
	"time"

	"upwrdfin/logger"
)

// Metric is one structured metric event.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler receives every emitted metric. Handlers run synchronously on
// the emitting goroutine and must not block.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler; zero means none.
type MetricHandlerID uint64

type handlerSet struct {
	mu     sync.RWMutex
	byID   map[MetricHandlerID]MetricHandler
	lastID MetricHandlerID
}

var handlers = &handlerSet{byID: make(map[MetricHandlerID]MetricHandler)}

// RegisterMetricHandler adds handler to the fan-out list.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	handlers.mu.Lock()
	defer handlers.mu.Unlock()
	handlers.lastID++
	handlers.byID[handlers.lastID] = handler
	return handlers.lastID
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlers.mu.Lock()
	delete(handlers.byID, id)
	handlers.mu.Unlock()
}

func (h *handlerSet) dispatch(metric Metric) {
	h.mu.RLock()
	targets := make([]MetricHandler, 0, len(h.byID))
	for _, fn := range h.byID {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(metric)
	}
}

func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	metric := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    cloneFields(fields),
	}

	logFields := cloneFields(metric.Fields)
	logFields["metric"] = name
	logFields["metric_type"] = metricType
	logFields["value"] = value
	log.WithComponent(component).WithFields(logFields).Debug("metric")

	handlers.dispatch(metric)
	return metric, true
}

func cloneFields(fields logger.Fields) logger.Fields {
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
