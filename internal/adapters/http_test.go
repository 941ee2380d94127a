package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/utjfc/reg-agent/pkg/models"
)

func TestTwilioSMS_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/Messages.json") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("missing/incorrect basic auth")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer server.Close()

	sms, err := NewTwilioSMS(TwilioSMSConfig{AccountSID: "AC123", AuthToken: "secret", From: "+447000000000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sms.baseURL = server.URL

	sid, err := sms.sendOnce(context.Background(), "+447111111111", "Welcome to the Tigers!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SM123" {
		t.Errorf("sid = %q, want SM123", sid)
	}
}

func TestTwilioSMS_Send_VendorErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer server.Close()

	sms, _ := NewTwilioSMS(TwilioSMSConfig{AccountSID: "AC123", AuthToken: "secret", From: "+447000000000"})
	sms.baseURL = server.URL

	_, err := sms.sendOnce(context.Background(), "+447111111111", "hi")
	if err == nil {
		t.Fatal("expected an error from a 500 response")
	}
}

func TestPaymentProvider_CreateBillingRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			t.Errorf("missing bearer token")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"billing_requests":{"id":"BRQ123"}}`))
	}))
	defer server.Close()

	provider, err := NewPaymentProvider(PaymentConfig{AccessToken: "secret-token", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := &models.RegistrationRecord{Team: "tigers", AgeGroup: "u10", Season: "2526", ChildFirstName: "Alex", ChildLastName: "Smith"}
	id, err := provider.CreateBillingRequest(context.Background(), record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "BRQ123" {
		t.Errorf("id = %q, want BRQ123", id)
	}
}

func TestPaymentProvider_ActivateSubscription_NormalizedDay(t *testing.T) {
	var gotDay float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Subscriptions struct {
				DayOfMonth float64 `json:"day_of_month"`
			} `json:"subscriptions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotDay = body.Subscriptions.DayOfMonth
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	provider, _ := NewPaymentProvider(PaymentConfig{AccessToken: "secret-token", BaseURL: server.URL})

	day := models.NormalizePaymentDay(31)
	if err := provider.ActivateSubscription(context.Background(), "BRQ123", day); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDay != -1 {
		t.Errorf("day_of_month sent = %v, want -1 for a rewritten month-end day", gotDay)
	}
}

func TestAddressLookupProvider_Lookup_MatchesHouseIdentifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"postcode": "SW1A 1AA",
			"addresses": [
				{"line_1": "10 Downing Street", "town_or_city": "London", "building_number": "10"},
				{"line_1": "12 Downing Street", "town_or_city": "London", "building_number": "12"}
			]
		}`))
	}))
	defer server.Close()

	provider, err := NewAddressLookupProvider(AddressLookupConfig{APIKey: "key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := provider.Lookup(context.Background(), "SW1A 1AA", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found || result.AddressLine1 != "10 Downing Street" {
		t.Errorf("got %+v, want a match on building number 10", result)
	}
}

func TestAddressLookupProvider_Lookup_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, _ := NewAddressLookupProvider(AddressLookupConfig{APIKey: "key", BaseURL: server.URL})

	result, err := provider.Lookup(context.Background(), "ZZ1 1ZZ", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found {
		t.Error("expected Found=false for a 404 from the vendor")
	}
}
