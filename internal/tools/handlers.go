package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/utjfc/reg-agent/internal/adapters"
	"github.com/utjfc/reg-agent/pkg/models"
)

// jsonResult marshals a value into a successful models.ToolResult.
func jsonResult(v any) (*models.ToolResult, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &models.ToolResult{Content: string(encoded)}, nil
}

// --- address_lookup -------------------------------------------------------

type addressLookupTool struct {
	address adapters.Address
}

// NewAddressLookupTool wraps adapters.Address as a tool for the NewReg agent
// (§4.5 "tools: address-lookup").
func NewAddressLookupTool(address adapters.Address) Tool {
	return &addressLookupTool{address: address}
}

func (t *addressLookupTool) Name() string { return "address_lookup" }
func (t *addressLookupTool) Description() string {
	return "Look up a UK address by postcode and house number or name."
}
func (t *addressLookupTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"postcode": {"type": "string", "description": "UK postcode"},
			"house_identifier": {"type": "string", "description": "House number or name"}
		},
		"required": ["postcode", "house_identifier"]
	}`)
}

func (t *addressLookupTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Postcode        string `json:"postcode"`
		HouseIdentifier string `json:"house_identifier"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("address_lookup: %w", err)
	}
	result, err := t.address.Lookup(ctx, input.Postcode, input.HouseIdentifier)
	if err != nil {
		return nil, err
	}
	return jsonResult(result)
}

// --- address_validate ------------------------------------------------------

type addressValidateTool struct{}

// NewAddressValidateTool checks postcode format without calling the
// external lookup vendor (§3 normalisation invariants: postcode
// uppercase/no-space).
func NewAddressValidateTool() Tool { return &addressValidateTool{} }

var postcodePattern = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?[0-9][A-Z]{2}$`)

func (t *addressValidateTool) Name() string { return "address_validate" }
func (t *addressValidateTool) Description() string {
	return "Validate that a string is a well-formed UK postcode."
}
func (t *addressValidateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"postcode": {"type": "string"}},
		"required": ["postcode"]
	}`)
}

func (t *addressValidateTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Postcode string `json:"postcode"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("address_validate: %w", err)
	}
	normalized := strings.ToUpper(strings.ReplaceAll(input.Postcode, " ", ""))
	return jsonResult(map[string]any{
		"valid":    postcodePattern.MatchString(normalized),
		"postcode": normalized,
	})
}

// --- dob_validate ------------------------------------------------------

type dobValidateTool struct{}

// NewDOBValidateTool checks a date-of-birth string against the DD-MM-YYYY
// format invariant and returns the child's age in whole years (§3).
func NewDOBValidateTool() Tool { return &dobValidateTool{} }

func (t *dobValidateTool) Name() string { return "dob_validate" }
func (t *dobValidateTool) Description() string {
	return "Validate a child's date of birth is a real calendar date in DD-MM-YYYY format and return their age."
}
func (t *dobValidateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"date_of_birth": {"type": "string", "description": "DD-MM-YYYY"}},
		"required": ["date_of_birth"]
	}`)
}

func (t *dobValidateTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		DateOfBirth string `json:"date_of_birth"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("dob_validate: %w", err)
	}
	dob, err := time.Parse("02-01-2006", input.DateOfBirth)
	if err != nil {
		return jsonResult(map[string]any{"valid": false})
	}
	now := time.Now()
	age := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		age--
	}
	return jsonResult(map[string]any{"valid": true, "age_years": age})
}

// --- payment_token_create ------------------------------------------------------

type paymentTokenCreateTool struct {
	payment adapters.Payment
	sms     adapters.SMS
}

// NewPaymentTokenCreateTool wraps adapters.Payment.CreateBillingRequest and,
// once the subscription is active, sends the SMS confirmation step 29's
// task instruction tells the parent about (§4.5 "payment-token-create",
// spec.md step 29→30). An SMS delivery failure after adapters.SMS's own
// retry policy is exhausted is returned as a tool error, matching the
// infrastructure-error propagation spec.md §5/§7 give SMS gateway outages.
func NewPaymentTokenCreateTool(payment adapters.Payment, sms adapters.SMS) Tool {
	return &paymentTokenCreateTool{payment: payment, sms: sms}
}

func (t *paymentTokenCreateTool) Name() string { return "payment_token_create" }
func (t *paymentTokenCreateTool) Description() string {
	return "Create a Direct Debit billing request for a completed registration, activate the subscription, and text the parent a confirmation."
}
func (t *paymentTokenCreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"season": {"type": "string"},
			"child_first_name": {"type": "string"},
			"child_last_name": {"type": "string"},
			"parent_mobile": {"type": "string", "description": "Parent's mobile number, used to send the confirmation SMS"},
			"day_of_month": {"type": "integer", "description": "Preferred payment day, 1-28 or 29-31 (rewritten to -1)"}
		},
		"required": ["team", "age_group", "season", "child_first_name", "child_last_name", "parent_mobile", "day_of_month"]
	}`)
}

func (t *paymentTokenCreateTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Team           string `json:"team"`
		AgeGroup       string `json:"age_group"`
		Season         string `json:"season"`
		ChildFirstName string `json:"child_first_name"`
		ChildLastName  string `json:"child_last_name"`
		ParentMobile   string `json:"parent_mobile"`
		DayOfMonth     int    `json:"day_of_month"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("payment_token_create: %w", err)
	}

	record := &models.RegistrationRecord{
		Team: input.Team, AgeGroup: input.AgeGroup, Season: input.Season,
		ChildFirstName: input.ChildFirstName, ChildLastName: input.ChildLastName,
	}
	billingRequestID, err := t.payment.CreateBillingRequest(ctx, record)
	if err != nil {
		return nil, err
	}

	day := models.NormalizePaymentDay(input.DayOfMonth)
	if err := t.payment.ActivateSubscription(ctx, billingRequestID, day); err != nil {
		return nil, err
	}

	messageSID := ""
	if strings.TrimSpace(input.ParentMobile) != "" {
		body := fmt.Sprintf("Direct Debit confirmed for %s %s. Thanks for registering!", input.ChildFirstName, input.ChildLastName)
		sid, err := t.sms.Send(ctx, input.ParentMobile, body)
		if err != nil {
			return nil, fmt.Errorf("payment_token_create: send confirmation sms: %w", err)
		}
		messageSID = sid
	}

	return jsonResult(map[string]any{
		"billing_request_id": billingRequestID,
		"day_of_month":       day,
		"sms_message_sid":    messageSID,
	})
}

// --- write_registration ------------------------------------------------------

type writeRegistrationTool struct {
	db adapters.DB
}

// NewWriteRegistrationTool wraps adapters.DB.UpsertRegistration.
func NewWriteRegistrationTool(db adapters.DB) Tool {
	return &writeRegistrationTool{db: db}
}

func (t *writeRegistrationTool) Name() string { return "write_registration" }
func (t *writeRegistrationTool) Description() string {
	return "Write or update a registration record in the club database."
}
func (t *writeRegistrationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"season": {"type": "string"},
			"parent_first_name": {"type": "string"},
			"parent_last_name": {"type": "string"},
			"parent_mobile": {"type": "string"},
			"parent_email": {"type": "string"},
			"child_first_name": {"type": "string"},
			"child_last_name": {"type": "string"},
			"child_dob": {"type": "string", "description": "DD-MM-YYYY"},
			"postcode": {"type": "string"},
			"house_identifier": {"type": "string"},
			"address_line_1": {"type": "string"},
			"address_line_2": {"type": "string"},
			"city": {"type": "string"},
			"medical_notes": {"type": "string"}
		},
		"required": ["team", "age_group", "season", "parent_first_name", "parent_last_name",
			"parent_mobile", "parent_email", "child_first_name", "child_last_name", "child_dob"]
	}`)
}

func (t *writeRegistrationTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Team            string `json:"team"`
		AgeGroup        string `json:"age_group"`
		Season          string `json:"season"`
		ParentFirstName string `json:"parent_first_name"`
		ParentLastName  string `json:"parent_last_name"`
		ParentMobile    string `json:"parent_mobile"`
		ParentEmail     string `json:"parent_email"`
		ChildFirstName  string `json:"child_first_name"`
		ChildLastName   string `json:"child_last_name"`
		ChildDOB        string `json:"child_dob"`
		Postcode        string `json:"postcode"`
		HouseIdentifier string `json:"house_identifier"`
		AddressLine1    string `json:"address_line_1"`
		AddressLine2    string `json:"address_line_2"`
		City            string `json:"city"`
		MedicalNotes    string `json:"medical_notes"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("write_registration: %w", err)
	}

	record := &models.RegistrationRecord{
		Team: input.Team, AgeGroup: input.AgeGroup, Season: input.Season,
		ParentFirstName: input.ParentFirstName, ParentLastName: input.ParentLastName,
		ParentMobile: strings.ToLower(input.ParentMobile), ParentEmail: strings.ToLower(input.ParentEmail),
		ChildFirstName: input.ChildFirstName, ChildLastName: input.ChildLastName,
		ChildDOB: input.ChildDOB, Postcode: strings.ToUpper(strings.ReplaceAll(input.Postcode, " ", "")),
		HouseIdentifier: input.HouseIdentifier, AddressLine1: input.AddressLine1,
		AddressLine2: input.AddressLine2, City: input.City, MedicalNotes: input.MedicalNotes,
	}

	id, err := t.db.UpsertRegistration(ctx, record)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"record_id": id})
}

// --- shirt_number_check ------------------------------------------------------

type shirtNumberCheckTool struct {
	db adapters.DB
}

// NewShirtNumberCheckTool wraps adapters.DB.ShirtNumberTaken (§3 shirt_number
// unique per team/age-group).
func NewShirtNumberCheckTool(db adapters.DB) Tool {
	return &shirtNumberCheckTool{db: db}
}

func (t *shirtNumberCheckTool) Name() string { return "shirt_number_check" }
func (t *shirtNumberCheckTool) Description() string {
	return "Check whether a shirt number is already taken within a team and age group."
}
func (t *shirtNumberCheckTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"shirt_number": {"type": "integer", "minimum": 1, "maximum": 25}
		},
		"required": ["team", "age_group", "shirt_number"]
	}`)
}

func (t *shirtNumberCheckTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Team        string `json:"team"`
		AgeGroup    string `json:"age_group"`
		ShirtNumber int    `json:"shirt_number"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("shirt_number_check: %w", err)
	}
	if input.ShirtNumber < 1 || input.ShirtNumber > 25 {
		return jsonResult(map[string]any{"taken": true, "reason": "out of range 1-25"})
	}
	taken, err := t.db.ShirtNumberTaken(ctx, input.Team, input.AgeGroup, input.ShirtNumber)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"taken": taken})
}

// --- write_kit ------------------------------------------------------

type writeKitTool struct {
	db adapters.DB
}

// NewWriteKitTool wraps adapters.DB.WriteKit.
func NewWriteKitTool(db adapters.DB) Tool { return &writeKitTool{db: db} }

func (t *writeKitTool) Name() string { return "write_kit" }
func (t *writeKitTool) Description() string {
	return "Record the chosen kit size, shirt number, and kit type against a registration."
}
func (t *writeKitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"kit_size": {"type": "string"},
			"shirt_number": {"type": "integer", "minimum": 1, "maximum": 25},
			"kit_type": {"type": "string", "enum": ["home", "away"]}
		},
		"required": ["record_id", "kit_size", "shirt_number", "kit_type"]
	}`)
}

func (t *writeKitTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		RecordID    string `json:"record_id"`
		KitSize     string `json:"kit_size"`
		ShirtNumber int    `json:"shirt_number"`
		KitType     string `json:"kit_type"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("write_kit: %w", err)
	}
	if !models.KitSizes[input.KitSize] {
		return nil, fmt.Errorf("write_kit: unsupported kit size %q", input.KitSize)
	}
	if err := t.db.WriteKit(ctx, input.RecordID, input.KitSize, input.ShirtNumber, input.KitType); err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"ok": true})
}

// --- put_image ------------------------------------------------------

type putImageTool struct {
	store adapters.PhotoStore
}

// NewPutImageTool wraps adapters.PhotoStore.PutImage. The engine passes
// already-optimised JPEG bytes (internal/photo handles resize/crop/re-encode
// before this tool is ever invoked).
func NewPutImageTool(store adapters.PhotoStore) Tool { return &putImageTool{store: store} }

func (t *putImageTool) Name() string { return "put_image" }
func (t *putImageTool) Description() string {
	return "Store an optimised player photo and return its storage URL."
}
func (t *putImageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {"type": "string"},
			"image_base64": {"type": "string"},
			"content_type": {"type": "string"}
		},
		"required": ["session_id", "image_base64", "content_type"]
	}`)
}

func (t *putImageTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		SessionID   string `json:"session_id"`
		ImageBase64 string `json:"image_base64"`
		ContentType string `json:"content_type"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("put_image: %w", err)
	}
	data, err := decodeBase64(input.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("put_image: %w", err)
	}
	url, err := t.store.PutImage(ctx, input.SessionID, data, input.ContentType)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"url": url})
}

// --- write_photo_url ------------------------------------------------------

type writePhotoURLTool struct {
	db adapters.DB
}

// NewWritePhotoURLTool wraps adapters.DB.WritePhotoURL.
func NewWritePhotoURLTool(db adapters.DB) Tool { return &writePhotoURLTool{db: db} }

func (t *writePhotoURLTool) Name() string { return "write_photo_url" }
func (t *writePhotoURLTool) Description() string {
	return "Attach a stored photo's URL to a registration record."
}
func (t *writePhotoURLTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record_id": {"type": "string"},
			"url": {"type": "string"}
		},
		"required": ["record_id", "url"]
	}`)
}

func (t *writePhotoURLTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		RecordID string `json:"record_id"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("write_photo_url: %w", err)
	}
	if err := t.db.WritePhotoURL(ctx, input.RecordID, input.URL); err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"ok": true})
}

// --- check_kit_needed ------------------------------------------------------

type checkKitNeededTool struct {
	db adapters.DB
}

// NewCheckKitNeededTool wraps adapters.DB.CheckKitNeeded, used by the
// re-registration workflow to decide whether to re-ask kit questions.
func NewCheckKitNeededTool(db adapters.DB) Tool { return &checkKitNeededTool{db: db} }

func (t *checkKitNeededTool) Name() string { return "check_kit_needed" }
func (t *checkKitNeededTool) Description() string {
	return "Check whether a returning player already has a kit on file for the current season."
}
func (t *checkKitNeededTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"child_first_name": {"type": "string"},
			"child_last_name": {"type": "string"}
		},
		"required": ["team", "age_group", "child_first_name", "child_last_name"]
	}`)
}

func (t *checkKitNeededTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Team           string `json:"team"`
		AgeGroup       string `json:"age_group"`
		ChildFirstName string `json:"child_first_name"`
		ChildLastName  string `json:"child_last_name"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("check_kit_needed: %w", err)
	}
	needed, err := t.db.CheckKitNeeded(ctx, input.Team, input.AgeGroup, input.ChildFirstName, input.ChildLastName)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"kit_needed": needed})
}

// --- db_query ------------------------------------------------------

type dbQueryTool struct {
	db adapters.DB
}

// NewDBQueryTool is the Orchestrator's one read-only tool (§4.5
// "Orchestrator: ... tools: db_query"). It only exposes the team lookup —
// the one read operation an orchestrator-track question ("is my team full,"
// "do you have a u12 team") needs; it cannot write or read player records.
func NewDBQueryTool(db adapters.DB) Tool { return &dbQueryTool{db: db} }

func (t *dbQueryTool) Name() string { return "db_query" }
func (t *dbQueryTool) Description() string {
	return "Look up whether a team and age group is supported by the club."
}
func (t *dbQueryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"}
		},
		"required": ["team", "age_group"]
	}`)
}

func (t *dbQueryTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Team     string `json:"team"`
		AgeGroup string `json:"age_group"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("db_query: %w", err)
	}
	team, err := t.db.LookupTeam(ctx, input.Team, input.AgeGroup)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return jsonResult(map[string]any{"supported": false})
		}
		return nil, err
	}
	return jsonResult(map[string]any{"supported": team.Supported})
}

// --- player_lookup ------------------------------------------------------

type playerLookupTool struct {
	db adapters.DB
}

// NewPlayerLookupTool wraps adapters.DB.LookupPlayer for the
// re-registration workflow's resumption check (§4.5 "tools: player-lookup").
func NewPlayerLookupTool(db adapters.DB) Tool { return &playerLookupTool{db: db} }

func (t *playerLookupTool) Name() string { return "player_lookup" }
func (t *playerLookupTool) Description() string {
	return "Look up a player's prior-season registration record by name, team, and age group."
}
func (t *playerLookupTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team": {"type": "string"},
			"age_group": {"type": "string"},
			"season": {"type": "string"},
			"child_first_name": {"type": "string"},
			"child_last_name": {"type": "string"}
		},
		"required": ["team", "age_group", "season", "child_first_name", "child_last_name"]
	}`)
}

func (t *playerLookupTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Team           string `json:"team"`
		AgeGroup       string `json:"age_group"`
		Season         string `json:"season"`
		ChildFirstName string `json:"child_first_name"`
		ChildLastName  string `json:"child_last_name"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("player_lookup: %w", err)
	}
	record, err := t.db.LookupPlayer(ctx, input.Team, input.AgeGroup, input.Season, input.ChildFirstName, input.ChildLastName)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return jsonResult(map[string]any{"found": false})
		}
		return nil, err
	}
	return jsonResult(map[string]any{"found": true, "record": record})
}

// --- copy_record_to_current_season ------------------------------------------------------

type copyRecordToCurrentSeasonTool struct {
	db adapters.DB
}

// NewCopyRecordToCurrentSeasonTool carries a prior season's registration
// forward into the current season marker, by re-upserting it under the new
// season string (§4.5 "tools: ... copy-record-to-current-season").
func NewCopyRecordToCurrentSeasonTool(db adapters.DB) Tool {
	return &copyRecordToCurrentSeasonTool{db: db}
}

func (t *copyRecordToCurrentSeasonTool) Name() string { return "copy_record_to_current_season" }
func (t *copyRecordToCurrentSeasonTool) Description() string {
	return "Copy a returning player's prior-season registration forward into the current season."
}
func (t *copyRecordToCurrentSeasonTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"record": {"type": "object"},
			"current_season": {"type": "string"}
		},
		"required": ["record", "current_season"]
	}`)
}

func (t *copyRecordToCurrentSeasonTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Record        models.RegistrationRecord `json:"record"`
		CurrentSeason string                    `json:"current_season"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("copy_record_to_current_season: %w", err)
	}
	record := input.Record
	record.ID = ""
	record.Season = input.CurrentSeason
	record.BillingRequestID = ""
	record.SubscriptionActive = false

	id, err := t.db.UpsertRegistration(ctx, &record)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"record_id": id})
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
