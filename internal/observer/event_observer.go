package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QCEvent is emitted by the service layer as uploads move through the
// pipeline.
type QCEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	ExperimentID   int64                  `json:"experiment_id,omitempty"`
	ImageID        int64                  `json:"image_id,omitempty"`
	Filename       string                 `json:"filename,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of QC event
type EventType string

const (
	// ImageScored when an upload was scored and persisted
	ImageScored EventType = "image_scored"
	// UploadRejected when an upload failed validation or decoding
	UploadRejected EventType = "upload_rejected"
	// ThumbnailFailed when thumbnail generation or storage failed
	ThumbnailFailed EventType = "thumbnail_failed"
	// ExperimentDeleted when an experiment and its images were removed
	ExperimentDeleted EventType = "experiment_deleted"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event QCEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event QCEvent)
}

// LoggingObserver logs QC events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles QC events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event QCEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"experiment_id":   event.ExperimentID,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.ImageID != 0 {
		fields["image_id"] = event.ImageID
	}
	if event.Filename != "" {
		fields["filename"] = event.Filename
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case ImageScored:
		o.logger.WithFields(fields).Info("Image scored")
	case UploadRejected:
		o.logger.WithFields(fields).Warn("Upload rejected")
	case ThumbnailFailed:
		o.logger.WithFields(fields).Warn("Thumbnail generation failed")
	case ExperimentDeleted:
		o.logger.WithFields(fields).Info("Experiment deleted")
	default:
		o.logger.WithFields(fields).Info("QC event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts pipeline outcomes for the debug health endpoint
type MetricsObserver struct {
	mu                  sync.RWMutex
	scored              int64
	ready               int64
	rejected            int64
	thumbnailFailures   int64
	deletedExperiments  int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles QC events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event QCEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ImageScored:
		o.scored++
		o.totalProcessingTime += event.ProcessingTime
		if ready, ok := event.Metadata["is_ml_ready"].(bool); ok && ready {
			o.ready++
		}
	case UploadRejected:
		o.rejected++
	case ThumbnailFailed:
		o.thumbnailFailures++
	case ExperimentDeleted:
		o.deletedExperiments++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.scored > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.scored)
	}

	return map[string]interface{}{
		"images_scored":          o.scored,
		"images_ml_ready":        o.ready,
		"uploads_rejected":       o.rejected,
		"thumbnail_failures":     o.thumbnailFailures,
		"experiments_deleted":    o.deletedExperiments,
		"avg_processing_time_ms": avgProcessingTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	inflight  sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event. Delivery is
// asynchronous and detached from the request's cancellation.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event QCEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, observer := range observers {
		p.inflight.Add(1)
		go func(obs Observer) {
			defer p.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Wait blocks until every notification dispatched so far has been handled.
func (p *EventPublisher) Wait() {
	p.inflight.Wait()
}
