package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mensageria/internal/config"
	"mensageria/internal/order"
	"mensageria/internal/platform/kafka"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Role selects which stage of the pipeline a process runs.
type Role string

const (
	RoleOrder        Role = "order"
	RoleInventory    Role = "inventory"
	RoleNotification Role = "notification"
)

// ServiceName is the name the role reports to logs and telemetry.
func (r Role) ServiceName() string {
	switch r {
	case RoleOrder:
		return config.OrderServiceName
	case RoleInventory:
		return config.InventoryServiceName
	case RoleNotification:
		return config.NotificationServiceName
	default:
		return string(r)
	}
}

// ErrNoConsumers is returned by Run for roles that only publish.
var ErrNoConsumers = errors.New("role has no consumers to run")

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	role      Role
	container *Container

	submitter *order.Submitter
	router    kafka.Router
	groupID   string

	running sync.WaitGroup
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context, role Role, opts ...Option) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
		role:   role,
	}

	container, err := NewContainer(app.ctx, role.ServiceName(), opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	if err := app.wire(NewServiceFactory(container)); err != nil {
		app.Shutdown()
		return nil, err
	}

	app.container.Logger().Info("Application initialized successfully", zap.String("role", string(role)))
	return app, nil
}

func (app *Application) wire(factory *ServiceFactory) error {
	switch app.role {
	case RoleOrder:
		submitter, err := factory.CreateSubmitter()
		if err != nil {
			return err
		}
		app.submitter = submitter

	case RoleInventory:
		processor, err := factory.CreateReservationProcessor()
		if err != nil {
			return err
		}
		app.groupID = config.InventoryGroupID
		app.router = kafka.Router{config.OrdersStream: processor.HandleOrder}

	case RoleNotification:
		processor, err := factory.CreateNotificationProcessor()
		if err != nil {
			return err
		}
		app.groupID = config.NotificationGroupID
		app.router = kafka.Router{config.InventoryEventsStream: processor.HandleResult}

	default:
		return fmt.Errorf("unknown role %q", app.role)
	}
	return nil
}

// SubmitOrder accepts an order. Only the order role can submit.
func (app *Application) SubmitOrder(items []string) (string, error) {
	if app.submitter == nil {
		return "", fmt.Errorf("role %s cannot submit orders", app.role)
	}
	return app.submitter.SubmitOrder(app.ctx, items)
}

// Run consumes every routed stream until the context is cancelled or a
// signal arrives.
func (app *Application) Run() error {
	if len(app.router) == 0 {
		return ErrNoConsumers
	}

	app.running.Add(1)
	defer app.running.Done()

	g, ctx := errgroup.WithContext(app.ctx)
	for stream, handler := range app.router {
		consumer := app.container.Consumer(stream, app.groupID)
		d := kafka.NewDispatcher(stream, consumer, handler, app.container.Logger(), app.container.Metrics(), app.container.DispatcherConfig())
		g.Go(func() error {
			return d.Run(ctx)
		})
	}
	return g.Wait()
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}
	app.running.Wait()

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
