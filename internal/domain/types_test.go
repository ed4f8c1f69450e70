package domain

import "testing"

func TestOrderStatusNext_IsMonotonic(t *testing.T) {
	next, ok := OrderStatusProcessing.Next()
	if !ok || next != OrderStatusShipped {
		t.Fatalf("processing.Next() = %q, %v", next, ok)
	}
	next, ok = OrderStatusShipped.Next()
	if !ok || next != OrderStatusDelivered {
		t.Fatalf("shipped.Next() = %q, %v", next, ok)
	}
	if _, ok := OrderStatusDelivered.Next(); ok {
		t.Fatal("delivered must be terminal")
	}
	if _, ok := OrderStatus("cancelled").Next(); ok {
		t.Fatal("unknown status must not advance")
	}
}

func TestOrderStatusActive(t *testing.T) {
	if !OrderStatusProcessing.Active() || !OrderStatusShipped.Active() {
		t.Fatal("processing and shipped orders count as active")
	}
	if OrderStatusDelivered.Active() {
		t.Fatal("delivered orders are not active")
	}
}

func TestIdentitySessionDropsPassword(t *testing.T) {
	id := Identity{Name: "Ana", Email: "ana@x.com", Password: "pw1"}
	got := id.Session()
	if got != (Session{Name: "Ana", Email: "ana@x.com"}) {
		t.Fatalf("unexpected session projection: %+v", got)
	}
}
