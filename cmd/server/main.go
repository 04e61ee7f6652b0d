package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/croplink/marketplace/internal/adapter/dispatch"
	"github.com/croplink/marketplace/internal/adapter/handler"
	"github.com/croplink/marketplace/internal/adapter/storage"
	"github.com/croplink/marketplace/internal/core/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mysqlDSN := getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/marketplace?parseTime=true")
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	httpAddr := getEnv("HTTP_ADDR", ":8080")
	deliveryFee := getEnvDecimal("DELIVERY_FEE", "5.00")
	lockTimeout := getEnvDuration("COMMIT_LOCK_TIMEOUT", 3*time.Second)
	dispatchWorkers := getEnvInt("DISPATCH_WORKERS", 4)
	dispatchQueue := getEnvInt("DISPATCH_QUEUE", 1024)

	// Initialize MySQL
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Adapters
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Delivery dispatcher
	dispatcher := dispatch.NewQueueDispatcher(mysqlAdapter, mysqlAdapter, dispatchQueue)
	dispatcher.Start(dispatchWorkers)

	// Core services
	cartService := service.NewCartService(mysqlAdapter, mysqlAdapter, redisAdapter)
	checkoutService := service.NewCheckoutService(mysqlAdapter, mysqlAdapter, deliveryFee)
	fulfillmentService := service.NewFulfillmentService(mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter, dispatcher, lockTimeout)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, fulfillmentService, mysqlAdapter)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: httpHandler.Routes(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	dispatcher.Stop()
	log.Println("dispatch workers stopped")

	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Fatalf("invalid %s: %q", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Fatalf("invalid %s: %q", key, value)
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	value := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		log.Fatalf("invalid %s: %q", key, value)
	}
	return d
}
