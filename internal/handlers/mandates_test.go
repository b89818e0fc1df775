package handlers

import (
	"net/http"
	"testing"
)

func TestCreateSubscriberMandateValidation(t *testing.T) {
	setupTest(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing subscriber", `{"companyName":"Shiny Windows","email":"a@b.c","monthlyAmount":3000}`},
		{"zero amount", `{"subscriberId":"sub1","monthlyAmount":0}`},
		{"negative amount", `{"subscriberId":"sub1","monthlyAmount":-500}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, CreateSubscriberMandate, "/subscribers/mandate", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestFinaliseSubscriberMandateValidation(t *testing.T) {
	setupTest(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing billing request", `{"subscriberId":"sub1","monthlyAmount":3000}`},
		{"missing subscriber", `{"billingRequestId":"BRQ1","monthlyAmount":3000}`},
		{"zero amount", `{"subscriberId":"sub1","billingRequestId":"BRQ1","monthlyAmount":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, FinaliseSubscriberMandate, "/subscribers/mandate/finalise", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}
