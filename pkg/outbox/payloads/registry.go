package payloads

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Decoders returns a decoder set for every order event this module emits.
func Decoders() (*outbox.Decoders, error) {
	d := outbox.NewDecoders()
	if err := d.Add(enums.EventOrderConfirmed, 1, outbox.JSON[OrderConfirmedEvent]()); err != nil {
		return nil, err
	}
	if err := d.Add(enums.EventOrderStatusChanged, 1, outbox.JSON[OrderStatusChangedEvent]()); err != nil {
		return nil, err
	}
	return d, nil
}
