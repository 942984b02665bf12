// Package model holds the canonical client-side shapes for everything the loyalty
// backend returns. Wire payloads are normalized into these types by the backend
// client; nothing past that boundary sees the duplicate camelCase/snake_case keys.
package model

// GuestName is the placeholder name shown before the first successful sync.
const GuestName = "Guest User"

// Profile is the account data returned by the profile endpoint.
type Profile struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// User is the merged view-model built by a full sync.
type User struct {
	Profile
	Points        int            `json:"points"`
	Notifications []Notification `json:"notifications"`
}

// Guest returns the view-model displayed before any sync has succeeded.
func Guest() User {
	return User{
		Profile:       Profile{Name: GuestName},
		Notifications: []Notification{},
	}
}

// UnreadCount returns the number of notifications not yet marked read.
func (u User) UnreadCount() int {
	n := 0
	for _, note := range u.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

// Balance is the wallet balance payload.
type Balance struct {
	Points int `json:"points"`
}

// Notification is a single inbox entry.
type Notification struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Time    string `json:"time"`
	Read    bool   `json:"read"`
}

// Product is a catalog item. Products are ordered through the support channel,
// never through a backend mutation.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Price       string   `json:"price,omitempty"`
	Specs       []string `json:"specs,omitempty"`
}

// Reward is a catalog entry redeemable for points.
type Reward struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Image          string `json:"image"`
	PointsRequired int    `json:"points_required"`
}

// Direction of a ledger entry.
const (
	Credit = "credit"
	Debit  = "debit"
)

// Transaction is a read-only wallet ledger entry.
type Transaction struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// Redemption is an entry of the user's reward claim history.
type Redemption struct {
	ID          string `json:"id"`
	RewardName  string `json:"reward_name"`
	PointsSpent int    `json:"points_spent"`
	Status      string `json:"status,omitempty"`
	Date        string `json:"date"`
}

// Banner is a promotional slide on the home screen.
type Banner struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Image string `json:"image"`
	Link  string `json:"link,omitempty"`
}

// LoginResult is the outcome of exchanging credentials for a bearer token.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ScanResult is the backend's answer to a voucher submission.
type ScanResult struct {
	PointsEarned int    `json:"points_earned"`
	Message      string `json:"message,omitempty"`
}

// RedeemResult is the backend's answer to a reward claim.
type RedeemResult struct {
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Order is the result of placing the current cart.
type Order struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Ticket is the reference returned for a support request.
type Ticket struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Registration is the sign-up form submitted to the backend.
type Registration struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	City     string `json:"city"`
	State    string `json:"state"`
	Password string `json:"password"`
}
