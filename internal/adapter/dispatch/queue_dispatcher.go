package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/port"
)

// QueueDispatcher hands confirmed orders to a bounded queue drained by a
// worker pool. Workers create the shipment record and advance the order to
// SCHEDULED. Notification is best-effort: a full queue drops the order with a
// log line and never blocks or rolls back the commit.
type QueueDispatcher struct {
	orders    port.OrderRepository
	shipments port.ShipmentRepository
	queue     chan domain.Order
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewQueueDispatcher(orders port.OrderRepository, shipments port.ShipmentRepository, queueSize int) *QueueDispatcher {
	return &QueueDispatcher{
		orders:    orders,
		shipments: shipments,
		queue:     make(chan domain.Order, queueSize),
	}
}

// Start launches the worker pool.
func (d *QueueDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	log.Printf("dispatch: started %d workers", workers)
}

// OrderConfirmed implements port.DeliveryDispatcher.
func (d *QueueDispatcher) OrderConfirmed(order domain.Order) {
	select {
	case d.queue <- order:
	default:
		log.Printf("dispatch: queue full, dropping notification for order %s", order.ID)
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (d *QueueDispatcher) Stop() {
	d.closeOnce.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *QueueDispatcher) workerLoop(id int) {
	for order := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		shipment := domain.Shipment{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			Mode:      order.DeliveryMode,
			Status:    domain.ShipmentStatusPending,
			CreatedAt: time.Now(),
		}
		if err := d.shipments.CreateShipment(ctx, shipment); err != nil {
			log.Printf("dispatch worker %d: failed to create shipment for order %s: %v", id, order.ID, err)
			cancel()
			continue
		}

		if err := d.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusScheduled); err != nil {
			log.Printf("dispatch worker %d: failed to schedule order %s: %v", id, order.ID, err)
		} else {
			log.Printf("dispatch worker %d: scheduled order %s", id, order.ID)
		}
		cancel()
	}
}
