package handlers

import "testing"

func TestMapBillingRequestStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"fulfilled", "confirmed"},
		{"cancelled", "cancelled"},
		{"ready_to_fulfil", "authorised"},
		{"pending", "pending"},
		{"collecting_customer_details", "pending"},
		{"", "pending"},
		{"some_future_status", "pending"},
	}

	for _, tt := range tests {
		if got := MapBillingRequestStatus(tt.raw); got != tt.want {
			t.Errorf("MapBillingRequestStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
