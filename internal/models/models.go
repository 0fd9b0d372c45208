package models

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Backend table names
const (
	TableCustomers         = "customers"
	TableDeliveryAgents    = "delivery_agents"
	TableAssignments       = "delivery_assignments"
	TableDailyDeliveries   = "daily_deliveries"
	TableInvoices          = "invoices"
	TableInvoiceItems      = "invoice_items"
	TablePayments          = "payments"
	TableProducts          = "products"
	TableUserProfiles      = "user_profiles"
	TableBusinessProfiles  = "business_profiles"
	TableSubscriptionPlans = "subscription_plans"
	TableUserSubscriptions = "user_subscriptions"
)

// Remote procedures
const (
	RPCAgentCustomers      = "get_agent_customers"
	RPCAgentDeliveryAgents = "get_agent_delivery_agents"
	RPCAgentAssignments    = "get_agent_assignments"
	RPCLoginDeliveryAgent  = "login_delivery_agent"
	RPCLoginCustomer       = "login_customer_by_name_phone"
	RPCSetDeliveryStatus   = "set_delivery_status"
	RPCStartDeliveryTrip   = "start_delivery_trip"
	RPCRecordDeliveryCall  = "record_delivery_call"
	RPCCompleteDelivery    = "complete_delivery"

	FunctionBroadcastNotification = "broadcast_notification"
)

// Shift is one of the two daily delivery windows
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
)

// UnmarshalJSON accepts any casing; rows written by older app builds use "Morning".
func (s *Shift) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = ""
		return nil
	}
	*s = Shift(strings.ToLower(strings.TrimSpace(*raw)))
	return nil
}

// Valid reports whether s is a known shift
func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftEvening
}

// Order sorts morning before evening
func (s Shift) Order() int {
	if s == ShiftEvening {
		return 1
	}
	return 0
}

// ParseShift normalizes user input into a Shift
func ParseShift(v string) (Shift, bool) {
	s := Shift(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

// DeliveryStatus is the authoritative daily delivery state
type DeliveryStatus string

const (
	StatusPending      DeliveryStatus = "Pending"
	StatusDelivered    DeliveryStatus = "Delivered"
	StatusFailed       DeliveryStatus = "Failed"
	StatusNotAvailable DeliveryStatus = "Not Available"
	StatusRefused      DeliveryStatus = "Refused"
	StatusSkipped      DeliveryStatus = "Skipped"
)

// IsDelivered reports whether the delivery reached the customer
func (s DeliveryStatus) IsDelivered() bool {
	return strings.EqualFold(string(s), string(StatusDelivered))
}

// IsFailure reports whether the status is any failure variant
func (s DeliveryStatus) IsFailure() bool {
	return s != "" && !s.IsDelivered() && !strings.EqualFold(string(s), string(StatusPending))
}

// ParseFailureStatus matches v against the failure statuses, ignoring case
// and treating underscores as spaces
func ParseFailureStatus(v string) (DeliveryStatus, bool) {
	v = strings.TrimSpace(strings.ReplaceAll(v, "_", " "))
	for _, s := range []DeliveryStatus{StatusFailed, StatusNotAvailable, StatusRefused, StatusSkipped} {
		if strings.EqualFold(v, string(s)) {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further trip transitions are expected
func (s DeliveryStatus) IsTerminal() bool {
	return s.IsDelivered() || s.IsFailure()
}

// PlanType distinguishes standing daily plans from seasonal ones
type PlanType string

const (
	PlanDaily    PlanType = "Daily"
	PlanSeasonal PlanType = "Seasonal"
)

// Customer is a row of the customers table
type Customer struct {
	ID             string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID        string          `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Name           string          `gorm:"not null" json:"name" validate:"required"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	Product        string          `json:"product"`
	Rate           decimal.Decimal `gorm:"type:numeric(10,2);default:0" json:"rate"`
	Plan           string          `json:"plan"`
	PlanType       PlanType        `gorm:"default:Daily" json:"plan_type,omitempty" validate:"omitempty,oneof=Daily Seasonal"`
	PreferredShift Shift           `json:"preferred_shift,omitempty" validate:"omitempty,oneof=morning evening"`
	CreatedAt      *Time           `gorm:"type:timestamptz;default:now()" json:"created_at,omitempty"`
}

// DeliveryAgent is a row of the delivery_agents table
type DeliveryAgent struct {
	ID        string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID   string `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Name      string `gorm:"not null" json:"name" validate:"required"`
	Phone     string `json:"phone"`
	Area      string `json:"area"`
	LoginID   string `gorm:"index" json:"login_id,omitempty"`
	CreatedAt *Time  `gorm:"type:timestamptz;default:now()" json:"created_at,omitempty"`
}

// Assignment is a standing mapping between an agent and a customer.
// The customer fields are only populated by get_agent_assignments.
type Assignment struct {
	ID              string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID         string  `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	CustomerID      string  `gorm:"type:uuid;index;not null" json:"customer_id" validate:"required"`
	DeliveryAgentID string  `gorm:"type:uuid;index;not null" json:"delivery_agent_id" validate:"required"`
	Date            string  `gorm:"type:date" json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Shift           Shift   `json:"shift" validate:"omitempty,oneof=morning evening"`
	Liters          float64 `gorm:"type:numeric(10,2);default:0" json:"liters"`
	Delivered       bool    `gorm:"default:false" json:"delivered"`
	AssignedAt      *Time   `gorm:"type:timestamptz;default:now()" json:"assigned_at,omitempty"`
	UnassignedAt    *Time   `gorm:"type:timestamptz" json:"unassigned_at,omitempty"`

	CustomerName    string          `gorm:"-:migration" json:"customer_name,omitempty"`
	CustomerPhone   string          `gorm:"-:migration" json:"customer_phone,omitempty"`
	CustomerAddress string          `gorm:"-:migration" json:"customer_address,omitempty"`
	CustomerPlan    string          `gorm:"-:migration" json:"customer_plan,omitempty"`
	Product         string          `gorm:"-:migration" json:"product,omitempty"`
	Rate            decimal.Decimal `gorm:"-:migration" json:"rate,omitempty"`
}

func (Assignment) TableName() string { return TableAssignments }

// Key identifies the (customer, shift) pair assignments are deduplicated on
func (a Assignment) Key() string {
	return a.CustomerID + "|" + string(a.Shift)
}

// DailyDelivery is the authoritative per-day delivery fact
type DailyDelivery struct {
	ID            string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID       string          `gorm:"type:uuid;uniqueIndex:uniq_daily_delivery" json:"owner_id,omitempty"`
	Date          string          `gorm:"type:date;uniqueIndex:uniq_daily_delivery" json:"date" validate:"required,datetime=2006-01-02"`
	CustomerID    string          `gorm:"type:uuid;uniqueIndex:uniq_daily_delivery" json:"customer_id" validate:"required"`
	Shift         Shift           `gorm:"uniqueIndex:uniq_daily_delivery" json:"shift" validate:"omitempty,oneof=morning evening"`
	Quantity      float64         `gorm:"type:numeric(10,2);default:0" json:"quantity"`
	Status        DeliveryStatus  `gorm:"default:Pending" json:"status"`
	Rate          decimal.Decimal `gorm:"type:numeric(10,2);default:0" json:"rate"`
	Product       string          `json:"product,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// Key matches a daily delivery to the assignment it realizes
func (d DailyDelivery) Key() string {
	return d.Date + "|" + d.CustomerID + "|" + string(d.Shift)
}

// Product is a sellable item with a unit rate
type Product struct {
	ID      string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID string          `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Name    string          `gorm:"not null" json:"name" validate:"required"`
	Unit    string          `gorm:"default:L" json:"unit,omitempty"`
	Rate    decimal.Decimal `gorm:"type:numeric(10,2);default:0" json:"rate"`
}

// Invoice is a billing document for one customer and period
type Invoice struct {
	ID          string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID     string          `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	CustomerID  string          `gorm:"type:uuid;index;not null" json:"customer_id" validate:"required"`
	PeriodStart string          `gorm:"type:date" json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd   string          `gorm:"type:date" json:"period_end" validate:"omitempty,datetime=2006-01-02"`
	Total       decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"total"`
	Status      string          `gorm:"default:draft" json:"status,omitempty"`
	IssuedAt    *Time           `gorm:"type:timestamptz" json:"issued_at,omitempty"`
}

// InvoiceItem is one line of an invoice
type InvoiceItem struct {
	ID          string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	InvoiceID   string          `gorm:"type:uuid;index;not null" json:"invoice_id" validate:"required"`
	Description string          `json:"description"`
	Quantity    float64         `gorm:"type:numeric(10,2)" json:"quantity"`
	Rate        decimal.Decimal `gorm:"type:numeric(10,2)" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
}

// Payment records money received from a customer
type Payment struct {
	ID         string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID    string          `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	CustomerID string          `gorm:"type:uuid;index;not null" json:"customer_id" validate:"required"`
	InvoiceID  string          `gorm:"type:uuid" json:"invoice_id,omitempty"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Method     string          `json:"method,omitempty"`
	PaidAt     *Time           `gorm:"type:timestamptz;default:now()" json:"paid_at,omitempty"`
}

// UserProfile is the seller's account profile
type UserProfile struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id" validate:"required"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// BusinessProfile holds the seller's business details printed on bills
type BusinessProfile struct {
	ID           string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	OwnerID      string `gorm:"type:uuid;uniqueIndex" json:"owner_id" validate:"required"`
	BusinessName string `json:"business_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
}

// SubscriptionPlan is a product tier sellers subscribe to
type SubscriptionPlan struct {
	ID           string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Price        decimal.Decimal `gorm:"type:numeric(10,2)" json:"price"`
	MaxCustomers int             `json:"max_customers"`
}

// UserSubscription links a seller to a plan
type UserSubscription struct {
	ID               string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id,omitempty" validate:"required"`
	UserID           string `gorm:"type:uuid;index" json:"user_id" validate:"required"`
	PlanID           string `gorm:"type:uuid" json:"plan_id" validate:"required"`
	Status           string `json:"status"`
	CurrentPeriodEnd *Time  `gorm:"type:timestamptz" json:"current_period_end,omitempty"`
}
