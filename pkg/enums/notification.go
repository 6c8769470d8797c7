package enums

import "slices"

// NotificationType names the email template sent for an order event.
type NotificationType string

const (
	NotificationOrderConfirmation NotificationType = "order_confirmation"
	NotificationOrderShipped      NotificationType = "order_shipped"
	NotificationOrderStatus       NotificationType = "order_status"
)

var notificationTypes = []NotificationType{
	NotificationOrderConfirmation,
	NotificationOrderShipped,
	NotificationOrderStatus,
}

func (n NotificationType) IsValid() bool { return slices.Contains(notificationTypes, n) }
