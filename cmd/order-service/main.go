// Command order-service submits one order whose items are the command-line
// arguments, and prints the accepted order id.
//
//	order-service keyboard mouse monitor
package main

import (
	"context"
	"encoding/json"
	"errors"
	stdlog "log"
	"os"

	"mensageria/internal/app"
)

type acceptedResponse struct {
	OrderID   string `json:"orderId"`
	ItemCount int    `json:"itemCount"`
	Status    string `json:"status"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run(items []string) error {
	if len(items) == 0 {
		return errors.New("usage: order-service ITEM [ITEM...]")
	}

	ctx := context.Background()

	application, err := app.NewApplication(ctx, app.RoleOrder)
	if err != nil {
		return err
	}
	// Shutdown drains the publisher, so the order is written before exit.
	defer application.Shutdown()

	orderID, err := application.SubmitOrder(items)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(acceptedResponse{
		OrderID:   orderID,
		ItemCount: len(items),
		Status:    "ACCEPTED",
	})
}
