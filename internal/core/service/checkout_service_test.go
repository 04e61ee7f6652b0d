package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croplink/marketplace/internal/adapter/storage"
	"github.com/croplink/marketplace/internal/core/domain"
)

func newCheckoutFixture(t *testing.T) (*CheckoutService, *CartService, *storage.MemoryAdapter) {
	mem := storage.NewMemoryAdapter()
	cart := NewCartService(mem, mem, mem)
	cart.now = func() time.Time { return testNow }
	checkout := NewCheckoutService(mem, mem, decimal.RequireFromString("5.00"))
	checkout.now = func() time.Time { return testNow }

	seedItem(t, mem, *inventoryItem(10))
	seedItem(t, mem, *rentalItem(2))
	return checkout, cart, mem
}

func TestCheckoutBuild_PricesSelection(t *testing.T) {
	checkout, cart, _ := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := cart.Add(ctx, "buyer-1", "seed-bag", domain.ItemTypeInventory, 3, nil)
	require.NoError(t, err)
	_, err = cart.Add(ctx, "buyer-1", "tractor", domain.ItemTypeRental, 1, windowOf(5, 7))
	require.NoError(t, err)

	keys := []domain.LineKey{
		{ItemID: "seed-bag", ItemType: domain.ItemTypeInventory},
		{ItemID: "tractor", ItemType: domain.ItemTypeRental, Window: windowOf(5, 7)},
	}
	session, err := checkout.Build(ctx, "buyer-1", keys, domain.DeliveryModeDelivery)
	require.NoError(t, err)

	require.Len(t, session.Lines, 2)
	// seed-bag: 10.00 x 3; tractor: 95.00 x 3 days x 1
	assert.True(t, session.Subtotal.Equal(decimal.RequireFromString("315.00")), "subtotal = %s", session.Subtotal)
	assert.True(t, session.DeliveryFee.Equal(decimal.RequireFromString("5.00")), "fee = %s", session.DeliveryFee)
	assert.True(t, session.Total.Equal(decimal.RequireFromString("320.00")), "total = %s", session.Total)
	assert.Equal(t, "buyer-1", session.BuyerID)
}

func TestCheckoutBuild_PickupHasNoFee(t *testing.T) {
	checkout, cart, _ := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := cart.Add(ctx, "buyer-1", "seed-bag", domain.ItemTypeInventory, 1, nil)
	require.NoError(t, err)

	keys := []domain.LineKey{{ItemID: "seed-bag", ItemType: domain.ItemTypeInventory}}
	session, err := checkout.Build(ctx, "buyer-1", keys, domain.DeliveryModePickup)
	require.NoError(t, err)

	assert.True(t, session.DeliveryFee.IsZero())
	assert.True(t, session.Total.Equal(session.Subtotal))
}

func TestCheckoutBuild_SelectsSubset(t *testing.T) {
	checkout, cart, _ := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := cart.Add(ctx, "buyer-1", "seed-bag", domain.ItemTypeInventory, 1, nil)
	require.NoError(t, err)
	_, err = cart.Add(ctx, "buyer-1", "tractor", domain.ItemTypeRental, 1, windowOf(5, 7))
	require.NoError(t, err)

	keys := []domain.LineKey{{ItemID: "seed-bag", ItemType: domain.ItemTypeInventory}}
	session, err := checkout.Build(ctx, "buyer-1", keys, domain.DeliveryModePickup)
	require.NoError(t, err)

	require.Len(t, session.Lines, 1)
	assert.Equal(t, "seed-bag", session.Lines[0].ItemID)
}

func TestCheckoutBuild_Errors(t *testing.T) {
	checkout, cart, _ := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := checkout.Build(ctx, "buyer-1", nil, domain.DeliveryModePickup)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = checkout.Build(ctx, "buyer-1", []domain.LineKey{{ItemID: "x", ItemType: domain.ItemTypeInventory}}, "TELEPORT")
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = cart.Add(ctx, "buyer-1", "seed-bag", domain.ItemTypeInventory, 1, nil)
	require.NoError(t, err)
	keys := []domain.LineKey{{ItemID: "not-in-cart", ItemType: domain.ItemTypeInventory}}
	_, err = checkout.Build(ctx, "buyer-1", keys, domain.DeliveryModePickup)
	assert.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestCheckoutBuild_IsPureProjection(t *testing.T) {
	checkout, cart, mem := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := cart.Add(ctx, "buyer-1", "seed-bag", domain.ItemTypeInventory, 3, nil)
	require.NoError(t, err)

	keys := []domain.LineKey{{ItemID: "seed-bag", ItemType: domain.ItemTypeInventory}}
	_, err = checkout.Build(ctx, "buyer-1", keys, domain.DeliveryModePickup)
	require.NoError(t, err)

	item, err := mem.GetItem(ctx, "seed-bag")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Supply, "building a session must not touch supply")

	lines, err := mem.ListLines(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, lines, 1, "building a session must not consume cart lines")
}
