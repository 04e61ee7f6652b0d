package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/croplink/marketplace/internal/adapter/storage"
	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/marketplace?parseTime=true"
	redisAddr     = "localhost:6379"
	itemID        = "stress-seed-bag"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Reset the item under test
	db.ExecContext(ctx, `DELETE FROM orders WHERE buyer_id LIKE 'stress-buyer-%'`)
	db.ExecContext(ctx, `DELETE FROM cart_lines WHERE owner_id LIKE 'stress-buyer-%'`)
	if err := mysqlAdapter.UpsertItem(ctx, domain.CatalogItem{
		ID:        itemID,
		Type:      domain.ItemTypeInventory,
		Name:      "Certified Seed Potato 25kg",
		UnitPrice: decimal.RequireFromString("18.50"),
		Supply:    initialStock,
	}); err != nil {
		log.Fatalf("failed to seed item: %v", err)
	}

	cartService := service.NewCartService(mysqlAdapter, mysqlAdapter, redisAdapter)
	checkoutService := service.NewCheckoutService(mysqlAdapter, mysqlAdapter, decimal.RequireFromString("5.00"))
	fulfillmentService := service.NewFulfillmentService(mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter, nil, 3*time.Second)

	var successCount atomic.Int32
	var conflictCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			buyerID := fmt.Sprintf("stress-buyer-%d", n)

			if _, err := cartService.Add(ctx, buyerID, itemID, domain.ItemTypeInventory, 1, nil); err != nil {
				conflictCount.Add(1)
				return
			}
			key := domain.LineKey{ItemID: itemID, ItemType: domain.ItemTypeInventory}
			session, err := checkoutService.Build(ctx, buyerID, []domain.LineKey{key}, domain.DeliveryModePickup)
			if err != nil {
				conflictCount.Add(1)
				return
			}
			if _, err := fulfillmentService.Commit(ctx, buyerID, session, "cash-on-delivery", uuid.New().String()); err != nil {
				conflictCount.Add(1)
				return
			}
			successCount.Add(1)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	conflict := conflictCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Buyers:     %d\n", totalRequests)
	fmt.Printf("Committed:        %d\n", success)
	fmt.Printf("Rejected:         %d\n", conflict)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && conflict == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: exactly %d commits succeeded\n", initialStock)
	} else {
		fmt.Printf("FAIL: expected %d committed/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, conflict)
	}

	item, err := mysqlAdapter.GetItem(ctx, itemID)
	if err != nil {
		log.Fatalf("failed to read final supply: %v", err)
	}
	fmt.Printf("Final Supply: %d\n", item.Supply)
	if item.Supply == 0 {
		fmt.Println("PASS: supply depleted to 0")
	} else {
		fmt.Printf("FAIL: expected supply 0, got %d\n", item.Supply)
	}
}
