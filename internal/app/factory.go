package app

import (
	"mensageria/internal/inventory"
	"mensageria/internal/notification"
	"mensageria/internal/order"

	"go.uber.org/zap"
)

// ServiceFactory creates business logic services with their dependencies
type ServiceFactory struct {
	container *Container
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(container *Container) *ServiceFactory {
	return &ServiceFactory{container: container}
}

// CreateSubmitter creates the order submission entry point
func (f *ServiceFactory) CreateSubmitter() (*order.Submitter, error) {
	publisher, err := f.container.Publisher()
	if err != nil {
		return nil, err
	}
	return order.NewSubmitter(publisher, f.container.Logger()), nil
}

// CreateReservationProcessor wires the inventory stage with its own guard
func (f *ServiceFactory) CreateReservationProcessor() (*inventory.Processor, error) {
	publisher, err := f.container.Publisher()
	if err != nil {
		return nil, err
	}
	guard, err := f.container.Guard("inventory")
	if err != nil {
		return nil, err
	}

	policy := inventory.MaxItemsPolicy{Max: f.container.Config().ReservationMaxItems}
	f.container.Logger().Info("Reservation policy configured", zap.Stringer("policy", policy))
	service := inventory.NewService(policy, f.container.Logger(), f.container.Tracer())
	return inventory.NewProcessor(service, publisher, guard, f.container.Logger(), f.container.Metrics()), nil
}

// CreateSink picks the webhook sink when a URL is configured
func (f *ServiceFactory) CreateSink() (notification.Sink, error) {
	cfg := f.container.Config()
	if cfg.NotificationWebhookURL == "" {
		return notification.NewLogSink(f.container.Logger()), nil
	}
	return notification.NewWebhookSink(notification.WebhookConfig{
		URL:              cfg.NotificationWebhookURL,
		Timeout:          cfg.NotificationWebhookTimeout,
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		ResetTimeout:     cfg.BreakerResetTimeout,
	}, f.container.Logger())
}

// CreateNotificationProcessor wires the notification stage with its own guard
func (f *ServiceFactory) CreateNotificationProcessor() (*notification.Processor, error) {
	sink, err := f.CreateSink()
	if err != nil {
		return nil, err
	}
	guard, err := f.container.Guard("notification")
	if err != nil {
		return nil, err
	}
	return notification.NewProcessor(sink, guard, f.container.Logger(), f.container.Tracer(), f.container.Metrics()), nil
}
