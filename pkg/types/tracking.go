package types

import "time"

// Tracking holds carrier details attached to a shipped order.
type Tracking struct {
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	TrackingURL       string     `json:"tracking_url,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

// TrackingPatch carries the fields an admin wants to set; nil leaves the
// current value untouched.
type TrackingPatch struct {
	TrackingNumber    *string    `json:"tracking_number,omitempty"`
	Carrier           *string    `json:"carrier,omitempty"`
	TrackingURL       *string    `json:"tracking_url,omitempty" validate:"omitempty,url"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

// IsEmpty reports whether the patch sets nothing.
func (p TrackingPatch) IsEmpty() bool {
	return p.TrackingNumber == nil && p.Carrier == nil && p.TrackingURL == nil &&
		p.EstimatedDelivery == nil && p.ShippedAt == nil && p.DeliveredAt == nil
}

// Merge applies the patch over t and returns the result.
func (t Tracking) Merge(p TrackingPatch) Tracking {
	if p.TrackingNumber != nil {
		t.TrackingNumber = *p.TrackingNumber
	}
	if p.Carrier != nil {
		t.Carrier = *p.Carrier
	}
	if p.TrackingURL != nil {
		t.TrackingURL = *p.TrackingURL
	}
	if p.EstimatedDelivery != nil {
		t.EstimatedDelivery = p.EstimatedDelivery
	}
	if p.ShippedAt != nil {
		t.ShippedAt = p.ShippedAt
	}
	if p.DeliveredAt != nil {
		t.DeliveredAt = p.DeliveredAt
	}
	return t
}
