package model

import "time"

type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Name             string     `json:"name"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLoginAt      *time.Time `json:"last_login_at"`
	LoginAttempts    int        `json:"-"`
	LockedUntil      *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Session is one device-bound authenticated session. SessionID is the
// opaque identifier embedded in tokens; it is rotated on every re-login
// from the same device while the row itself is reused.
type Session struct {
	ID             int64      `json:"-"`
	UserID         int64      `json:"user_id"`
	SessionID      string     `json:"session_id"`
	DeviceInfo     string     `json:"device_info"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsActive       bool       `json:"is_active"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Challenge purposes. A login code can never satisfy a toggle confirmation
// and vice versa.
const (
	ChallengePurposeLogin  = "login"
	ChallengePurposeToggle = "toggle"
)

// TwoFactorChallenge is a single-use OTP bound to a user and a session
// identifier. Once verified it can never be verified again.
type TwoFactorChallenge struct {
	ID        int64     `json:"-"`
	UserID    int64     `json:"user_id"`
	OTP       string    `json:"-"`
	Purpose   string    `json:"purpose"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

type EmailVerification struct {
	ID        int64     `json:"-"`
	Email     string    `json:"email"`
	OTP       string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

type CartItem struct {
	ID          int64   `json:"-"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type Cart struct {
	ID          int64      `json:"-"`
	UserID      int64      `json:"user_id"`
	Items       []CartItem `json:"items"`
	TotalAmount float64    `json:"total_amount"`
	TotalItems  int        `json:"total_items"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type OrderItem struct {
	ID          int64   `json:"-"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// Order is a frozen snapshot of a cart at checkout time. TotalAmount is
// immutable after creation; price changes on products never alter it.
type Order struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	OrderNumber     string        `json:"order_number"`
	Items           []OrderItem   `json:"items"`
	TotalAmount     float64       `json:"total_amount"`
	ShippingAddress string        `json:"shipping_address"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentIntentID *string       `json:"payment_intent_id"`
	TrackingNumber  *string       `json:"tracking_number"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// WebhookEvent is the durable ledger row for one external payment event.
// EventID is the processor's globally unique event identifier and the
// deduplication key for redeliveries.
type WebhookEvent struct {
	ID              int64     `json:"-"`
	EventID         string    `json:"event_id"`
	EventType       string    `json:"event_type"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Status          string    `json:"status"`
	OrderID         *int64    `json:"order_id"`
	Processed       bool      `json:"processed"`
	Error           *string   `json:"error"`
	RawData         []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}
