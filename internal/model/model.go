package model

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMerchant Role = "merchant"
	RoleConsumer Role = "consumer"
	RoleGuest    Role = "guest"
)

type AccountProfile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	UserName       string    `json:"userName"`
	DisplayName    string    `json:"displayName"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Role           Role      `json:"role"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// Session is the persisted authentication state. IsAuthenticated implies a non-empty Token;
// User may be nil while authenticated when the profile could not be loaded.
type Session struct {
	Token           string          `json:"token,omitempty"`
	User            *AccountProfile `json:"user,omitempty"`
	IsAuthenticated bool            `json:"isAuthenticated"`
}

// Degraded reports a session that holds a token but no profile.
func (s Session) Degraded() bool {
	return s.IsAuthenticated && s.User == nil
}

type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "Created"   // link issued, gateway page not confirmed yet
	PaymentPending   PaymentStatus = "Pending"   // status polling in progress
	PaymentSucceeded PaymentStatus = "Succeeded" // gateway confirmed the payment
	PaymentFailed    PaymentStatus = "Failed"    // gateway rejected the payment
	PaymentCanceled  PaymentStatus = "Canceled"  // user canceled on the gateway page
	PaymentTimedOut  PaymentStatus = "TimedOut"  // no terminal answer within the attempt budget
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentSucceeded, PaymentFailed, PaymentCanceled, PaymentTimedOut:
		return true
	}
	return false
}

type PaymentAttempt struct {
	OrderCode    int64         `json:"orderCode"`    // correlation id, second-resolution timestamp
	Amount       int64         `json:"amount"`       // minor currency unit
	Status       PaymentStatus `json:"status"`       // attempt status
	AttemptsMade int           `json:"attemptsMade"` // status checks issued so far
	Link         string        `json:"link,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type WalletData struct {
	AccountID      string  `json:"accountId"`
	Balance        int64   `json:"balance"`
	Points         int64   `json:"points"`
	LifetimePoints int64   `json:"lifetimePoints"`
	TotalReturns   int64   `json:"totalReturns"`
	CO2Saved       float64 `json:"co2Saved"`
}

type HistoryEntry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UnmarshalJSON accepts both entry objects and the bare strings some backends return.
func (h *HistoryEntry) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*h = HistoryEntry{Description: s}
		return nil
	}
	type plain HistoryEntry
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*h = HistoryEntry(p)
	return nil
}

// PackageStatus is where a reusable package is in its borrow/return cycle.
type PackageStatus string

const (
	PackageActive   PackageStatus = "Active"
	PackageInUse    PackageStatus = "InUse"
	PackageReturned PackageStatus = "Returned"
	PackageWashing  PackageStatus = "Washing"
	PackageDamaged  PackageStatus = "Damaged"
)

func (s PackageStatus) Valid() bool {
	switch s {
	case PackageActive, PackageInUse, PackageReturned, PackageWashing, PackageDamaged:
		return true
	}
	return false
}

type PackageItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Package struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	Items      []PackageItem `json:"items"`
	TotalPrice int64         `json:"totalPrice"`
	Status     PackageStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// QRCodeResult is the outcome of generating one item's QR code.
type QRCodeResult struct {
	ItemUID   string `json:"itemUid"`
	QRCodeURL string `json:"qrCodeUrl"`
	Status    string `json:"status"` // "success" or "error"
	Error     string `json:"error,omitempty"`
}
