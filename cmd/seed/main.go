package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/croplink/marketplace/internal/adapter/storage"
	"github.com/croplink/marketplace/internal/core/domain"
)

// Seeds a demo catalog: farm-supply inventory, crop listings, and a rental
// fleet.
func main() {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/marketplace?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	items := []domain.CatalogItem{
		{
			ID:        "npk-fertilizer-50kg",
			Type:      domain.ItemTypeInventory,
			Name:      "NPK Fertilizer 50kg",
			UnitPrice: decimal.RequireFromString("32.00"),
			Supply:    120,
		},
		{
			ID:        "drip-irrigation-kit",
			Type:      domain.ItemTypeInventory,
			Name:      "Drip Irrigation Kit (1 acre)",
			UnitPrice: decimal.RequireFromString("149.99"),
			Supply:    35,
		},
		{
			ID:          "maize-harvest-lot-7",
			Type:        domain.ItemTypeListing,
			Name:        "Maize, Harvest Lot 7 (per quintal)",
			UnitPrice:   decimal.RequireFromString("21.75"),
			Supply:      400,
			HarvestedAt: time.Now().AddDate(0, 0, -3),
			ExpiryDays:  60,
		},
		{
			ID:          "tomato-greenhouse-b",
			Type:        domain.ItemTypeListing,
			Name:        "Tomatoes, Greenhouse B (per crate)",
			UnitPrice:   decimal.RequireFromString("9.40"),
			Supply:      85,
			HarvestedAt: time.Now().AddDate(0, 0, -1),
			ExpiryDays:  10,
		},
		{
			ID:        "compact-tractor-45hp",
			Type:      domain.ItemTypeRental,
			Name:      "Compact Tractor 45HP (per day)",
			UnitPrice: decimal.RequireFromString("95.00"),
			FleetSize: 3,
		},
		{
			ID:        "grain-drill-seeder",
			Type:      domain.ItemTypeRental,
			Name:      "Grain Drill Seeder (per day)",
			UnitPrice: decimal.RequireFromString("60.00"),
			FleetSize: 2,
		},
	}

	for _, item := range items {
		if err := adapter.UpsertItem(ctx, item); err != nil {
			log.Fatalf("failed to seed %s: %v", item.ID, err)
		}
		log.Printf("seeded %s (%s)", item.ID, item.Type)
	}
	log.Printf("seeded %d catalog items", len(items))
}
