// Command recordsvc serves tenant-scoped accounts and tasks over HTTP, with
// one MongoDB database per tenant.
package main

import (
	"log"

	"github.com/gaborage/tenant-records/app"
	"github.com/gaborage/tenant-records/records"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := application.RegisterModule(records.NewModule()); err != nil {
		log.Fatalf("Failed to register records module: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}
