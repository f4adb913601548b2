package main

import (
	"context"
	stdlog "log"

	"mensageria/internal/app"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	application, err := app.NewApplication(ctx, app.RoleInventory)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}
