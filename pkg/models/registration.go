package models

// RegistrationRoute is the outcome of classifying an inbound message
// against the registration-code grammar (§4.4).
type RegistrationRoute string

const (
	RouteOrchestrator    RegistrationRoute = "orchestrator"
	RouteNewRegistration RegistrationRoute = "new_registration"
	RouteReRegistration  RegistrationRoute = "re_registration"
)

// Team is the reference-table row a registration code's team/age-group
// pair is validated against (§4.4 step 2).
type Team struct {
	Name      string
	AgeGroup  string
	Supported bool
}

// RegistrationRecord holds the fields the engine writes to the external
// tabular database. Invariants from §3 are enforced by the engine before
// any adapter write, not by the database.
type RegistrationRecord struct {
	ID                  string
	Team                string
	AgeGroup             string
	Season               string
	ParentFirstName      string
	ParentLastName       string
	ParentMobile         string
	ParentEmail          string
	ChildFirstName       string
	ChildLastName        string
	ChildDOB             string // DD-MM-YYYY
	Postcode             string
	HouseIdentifier      string
	AddressLine1         string
	AddressLine2         string
	City                 string
	MedicalNotes         string
	PreferredPaymentDay  int // 1..28 or -1
	ShirtNumber          int // 1..25
	KitSize              string
	KitType              string
	PhotoURL             string
	BillingRequestID     string
	SubscriptionActive   bool
}

// KitSizes is the enumerated set of accepted kit sizes (§3).
var KitSizes = map[string]bool{
	"3-4": true, "5-6": true, "7-8": true, "9-10": true, "11-12": true,
	"13-14": true, "S": true, "M": true, "L": true, "XL": true,
}

// NormalizePaymentDay rewrites month-end days to the -1 "last day" sentinel
// per §4.2/§8 ("Days {29, 30, 31} are rewritten to -1 before the call").
func NormalizePaymentDay(day int) int {
	if day >= 29 && day <= 31 {
		return -1
	}
	return day
}
