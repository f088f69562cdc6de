package dto

// RegisterRequest represents the request to create an account
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token for refresh and logout
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// DepositRequest represents a wallet top-up
type DepositRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// MilestoneRequest represents one milestone of a new order
type MilestoneRequest struct {
	Title  string  `json:"title" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// CreateOrderRequest represents the request to create an order
type CreateOrderRequest struct {
	SellerID    string             `json:"seller_id" binding:"required,uuid"`
	ListingID   *string            `json:"listing_id" binding:"omitempty,uuid"`
	Title       string             `json:"title" binding:"required"`
	TotalAmount float64            `json:"total_amount" binding:"required,gt=0"`
	Currency    string             `json:"currency"`
	Milestones  []MilestoneRequest `json:"milestones" binding:"dive"`
}

// ReasonRequest is used by cancel, decline and similar actions
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ConfirmPaymentRequest carries the intent id of a payment_intent.succeeded event
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// RefundRequest represents a refund request; empty amount refunds the whole remainder
type RefundRequest struct {
	Amount *float64 `json:"amount" binding:"omitempty,gt=0"`
	Reason string   `json:"reason"`
}

// OpenDisputeRequest represents the request to open a dispute
type OpenDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveDisputeRequest represents the admin decision on a dispute
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=release refund"`
	Note    string `json:"note"`
}

// CreateRetainerRequest represents the request to hire a provider on a retainer
type CreateRetainerRequest struct {
	ProviderProfileID string  `json:"provider_profile_id" binding:"required,uuid"`
	Title             string  `json:"title" binding:"required"`
	WeeklyHours       float64 `json:"weekly_hours" binding:"required,gt=0"`
	HourlyRate        float64 `json:"hourly_rate" binding:"required,gt=0"`
	Currency          string  `json:"currency"`
}

// CancelRetainerRequest represents a retainer cancellation; empty date means the default notice period
type CancelRetainerRequest struct {
	EffectiveDate *string `json:"effective_date"`
	Reason        string  `json:"reason"`
}

// LogHoursRequest represents a weekly timesheet entry
type LogHoursRequest struct {
	WeekStart   string  `json:"week_start" binding:"required"`
	Hours       float64 `json:"hours"`
	Description *string `json:"description"`
}

// SetAvailabilityRequest represents a single day status change
type SetAvailabilityRequest struct {
	Date   string  `json:"date" binding:"required"`
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

// BulkAvailabilityRequest represents a status change for several days
type BulkAvailabilityRequest struct {
	Dates  []string `json:"dates" binding:"required,min=1"`
	Status string   `json:"status" binding:"required"`
}

// ToggleAvailabilityRequest carries the status the client currently shows
type ToggleAvailabilityRequest struct {
	Date          string `json:"date" binding:"required"`
	CurrentStatus string `json:"current_status"`
}

// BookSlotRequest represents a booking of a provider day
type BookSlotRequest struct {
	Date string `json:"date" binding:"required"`
}

// OffboardMemberRequest represents the request to offboard a foundry member
type OffboardMemberRequest struct {
	Mode   string `json:"mode" binding:"required"`
	Reason string `json:"reason"`
}

// LogOTJTRequest represents an off-the-job training time entry
type LogOTJTRequest struct {
	Date         string  `json:"date" binding:"required"`
	Hours        float64 `json:"hours"`
	ActivityType string  `json:"activity_type" binding:"required"`
	Description  *string `json:"description"`
}

// ReviewOTJTRequest represents the mentor decision on a training log
type ReviewOTJTRequest struct {
	Decision string  `json:"decision" binding:"required"`
	Comment  *string `json:"comment"`
}

// ResubmitOTJTRequest represents a corrected training log
type ResubmitOTJTRequest struct {
	Hours       *float64 `json:"hours"`
	Description *string  `json:"description"`
}

// UpdatePreferenceRequest represents channel settings for one event type
type UpdatePreferenceRequest struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
}
