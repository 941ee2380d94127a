package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Address is the C2 address-lookup vendor contract (§4.2): lookup(postcode,
// house_identifier) -> address | None.
type Address interface {
	Lookup(ctx context.Context, postcode, houseIdentifier string) (*LookupResult, error)
}

// LookupResult is a found address. Found is false (with all other fields
// empty) when the vendor has no match, which the engine surfaces as an
// address-validation failure rather than a fatal error.
type LookupResult struct {
	Found        bool
	AddressLine1 string
	AddressLine2 string
	City         string
	Postcode     string
}

// AddressLookupProvider queries a UK postcode-lookup API over plain REST.
type AddressLookupProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// AddressLookupConfig configures an AddressLookupProvider.
type AddressLookupConfig struct {
	APIKey  string
	BaseURL string
}

// NewAddressLookupProvider builds an AddressLookupProvider.
func NewAddressLookupProvider(cfg AddressLookupConfig) (*AddressLookupProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("adapters: address lookup API key is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.getaddress.io"
	}
	return &AddressLookupProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Lookup resolves a postcode plus house identifier (number or name) to a
// single address. A vendor 404 is reported as Found=false, not an error.
func (a *AddressLookupProvider) Lookup(ctx context.Context, postcode, houseIdentifier string) (*LookupResult, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	reqURL := fmt.Sprintf("%s/find/%s?api-key=%s", a.baseURL, url.PathEscape(normalized), url.QueryEscape(a.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adapters: address lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &LookupResult{Found: false}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("address lookup API error (%d): %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Postcode  string `json:"postcode"`
		Addresses []struct {
			Line1          string `json:"line_1"`
			Line2          string `json:"line_2"`
			TownOrCity     string `json:"town_or_city"`
			BuildingNumber string `json:"building_number"`
			BuildingName   string `json:"building_name"`
		} `json:"addresses"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("adapters: parse address lookup response: %w", err)
	}

	for _, addr := range payload.Addresses {
		if matchesHouseIdentifier(addr.BuildingNumber, addr.BuildingName, houseIdentifier) {
			return &LookupResult{
				Found:        true,
				AddressLine1: addr.Line1,
				AddressLine2: addr.Line2,
				City:         addr.TownOrCity,
				Postcode:     payload.Postcode,
			}, nil
		}
	}

	return &LookupResult{Found: false}, nil
}

func matchesHouseIdentifier(buildingNumber, buildingName, houseIdentifier string) bool {
	id := strings.TrimSpace(strings.ToLower(houseIdentifier))
	if id == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(buildingNumber), id) ||
		strings.Contains(strings.ToLower(buildingName), id)
}
