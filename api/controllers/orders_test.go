package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubOrders struct {
	byID      map[string]*orders.Order
	status    enums.OrderStatus
	patch     types.TrackingPatch
	statusErr error
}

func (s *stubOrders) Get(_ context.Context, orderID string) (*orders.Order, error) {
	if o, ok := s.byID[orderID]; ok {
		return o, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) GetForUser(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil || o.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return o, nil
}

func (s *stubOrders) ListByUser(_ context.Context, userID string) ([]orders.Order, error) {
	out := []orders.Order{}
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubOrders) SetStatus(ctx context.Context, orderID string, status enums.OrderStatus) (*orders.Order, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	s.status = status
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Status = status
	return o, nil
}

func (s *stubOrders) MergeTracking(ctx context.Context, orderID string, patch types.TrackingPatch) (*orders.Order, error) {
	s.patch = patch
	return s.Get(ctx, orderID)
}

func newStubOrders() *stubOrders {
	return &stubOrders{byID: map[string]*orders.Order{
		"order_1": {ID: "order_1", UserID: "user_1", Status: enums.OrderStatusConfirmed},
		"order_2": {ID: "order_2", UserID: "user_2", Status: enums.OrderStatusConfirmed},
	}}
}

func TestOrderListScopedToCaller(t *testing.T) {
	t.Parallel()
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/orders", nil), "user_1", enums.RoleCustomer)
	resp := httptest.NewRecorder()
	OrderList(newStubOrders(), nil).ServeHTTP(resp, req)

	var out orderListResponse
	decodeData(t, resp, &out)
	if out.Count != 1 || out.Orders[0].ID != "order_1" {
		t.Fatalf("unexpected list %+v", out)
	}
}

func TestOrderDetailHidesOtherUsersOrders(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/order_2", nil)
	req = withURLParams(asUser(req, "user_1", enums.RoleCustomer), map[string]string{"orderId": "order_2"})
	resp := httptest.NewRecorder()
	OrderDetail(newStubOrders(), nil).ServeHTTP(resp, req)
	expectError(t, resp, http.StatusNotFound, string(pkgerrors.CodeNotFound))
}

func adminReq(method, path, body, orderID string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = asUser(req, "admin_1", enums.RoleAdmin)
	return withURLParams(req, map[string]string{"orderId": orderID})
}

func TestAdminSetOrderStatus(t *testing.T) {
	t.Parallel()
	svc := newStubOrders()
	resp := httptest.NewRecorder()
	AdminSetOrderStatus(svc, nil).ServeHTTP(resp, adminReq(http.MethodPatch, "/api/admin/orders/order_1/status", `{"status":"processing"}`, "order_1"))

	var out orders.Order
	decodeData(t, resp, &out)
	if out.Status != enums.OrderStatusProcessing || svc.status != enums.OrderStatusProcessing {
		t.Fatalf("unexpected status %s", out.Status)
	}
}

func TestAdminSetOrderStatusRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	resp := httptest.NewRecorder()
	AdminSetOrderStatus(newStubOrders(), nil).ServeHTTP(resp, adminReq(http.MethodPatch, "/", `{"status":"lost"}`, "order_1"))
	expectError(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
}

func TestAdminSetOrderStatusIllegalTransition(t *testing.T) {
	t.Parallel()
	svc := newStubOrders()
	svc.statusErr = pkgerrors.New(pkgerrors.CodeIllegalTransition, "cannot move order from confirmed to delivered")
	resp := httptest.NewRecorder()
	AdminSetOrderStatus(svc, nil).ServeHTTP(resp, adminReq(http.MethodPatch, "/", `{"status":"delivered"}`, "order_1"))
	env := expectError(t, resp, http.StatusConflict, string(pkgerrors.CodeIllegalTransition))
	if !strings.Contains(env.Error.Message, "confirmed") {
		t.Fatalf("expected transition message, got %q", env.Error.Message)
	}
}

func TestAdminMergeOrderTracking(t *testing.T) {
	t.Parallel()
	svc := newStubOrders()
	resp := httptest.NewRecorder()
	body := `{"carrier":"UPS","tracking_number":"1Z999","shipped_at":"2026-03-01T10:00:00Z"}`
	AdminMergeOrderTracking(svc, nil).ServeHTTP(resp, adminReq(http.MethodPatch, "/", body, "order_1"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.patch.Carrier == nil || *svc.patch.Carrier != "UPS" || svc.patch.ShippedAt == nil {
		t.Fatalf("patch not forwarded: %+v", svc.patch)
	}
}

func TestAdminMergeOrderTrackingRejectsEmptyPatch(t *testing.T) {
	t.Parallel()
	resp := httptest.NewRecorder()
	AdminMergeOrderTracking(newStubOrders(), nil).ServeHTTP(resp, adminReq(http.MethodPatch, "/", `{}`, "order_1"))
	expectError(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
}

func TestAdminMergeOrderTrackingValidatesURL(t *testing.T) {
	t.Parallel()
	resp := httptest.NewRecorder()
	AdminMergeOrderTracking(newStubOrders(), nil).ServeHTTP(resp, adminReq(http.MethodPatch, "/", `{"tracking_url":"not a url"}`, "order_1"))
	expectError(t, resp, http.StatusBadRequest, string(pkgerrors.CodeValidation))
}

type stubDeliveries struct{}

func (stubDeliveries) ListByOrder(_ context.Context, orderID string) ([]notifications.Delivery, error) {
	return []notifications.Delivery{{ID: "ntf_1", Kind: enums.NotificationOrderConfirmation, Recipient: "ada@example.com"}}, nil
}

func TestAdminOrderNotifications(t *testing.T) {
	t.Parallel()
	resp := httptest.NewRecorder()
	AdminOrderNotifications(stubDeliveries{}, nil).ServeHTTP(resp, adminReq(http.MethodGet, "/", "", "order_1"))

	var out struct {
		Notifications []notifications.Delivery `json:"notifications"`
		Count         int                      `json:"count"`
	}
	decodeData(t, resp, &out)
	if out.Count != 1 || out.Notifications[0].ID != "ntf_1" {
		t.Fatalf("unexpected deliveries %+v", out)
	}
}
