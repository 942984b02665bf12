package store

// User is a registered loyalty member. Points is the wallet balance.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	City         string `json:"city"`
	State        string `json:"state"`
	ProfileImage string `json:"profile_image,omitempty"`
	Points       int    `json:"points"`
	PasswordHash string `json:"password_hash,omitempty"`
	// Password is accepted in seed files only and hashed on load.
	Password  string `json:"password,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Voucher is a printed QR code worth a fixed number of points.
type Voucher struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Points   int    `json:"points"`
	Reusable bool   `json:"reusable,omitempty"`
	UsedBy   int64  `json:"used_by,omitempty"`
	UsedAt   string `json:"used_at,omitempty"`
}

// Transaction is a wallet ledger entry.
type Transaction struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Type      string `json:"type"` // credit, debit
	Points    int    `json:"points"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// Reward is a catalog entry redeemable for points.
type Reward struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ImageURL       string `json:"image_url"`
	PointsRequired int    `json:"pointsRequired"`
}

// Redemption records a claimed reward.
type Redemption struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	RewardID    int64  `json:"reward_id"`
	RewardName  string `json:"rewardName"`
	PointsSpent int    `json:"pointsSpent"`
	Code        string `json:"code"`
	Status      string `json:"status"`
	RedeemedAt  string `json:"redeemed_at"`
}

// Product is a catalog item.
type Product struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Price       string   `json:"price"`
	Specs       []string `json:"specs,omitempty"`
}

// CartItem is one product line in a user's cart.
type CartItem struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Order is a placed cart.
type Order struct {
	ID        int64   `json:"id"`
	OrderID   string  `json:"order_id"`
	UserID    int64   `json:"user_id"`
	Products  []int64 `json:"products"`
	CreatedAt string  `json:"created_at"`
}

// Ticket is a support request.
type Ticket struct {
	ID        int64  `json:"id"`
	TicketID  string `json:"ticket_id"`
	UserID    int64  `json:"user_id"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Banner is a promotional slide.
type Banner struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	URL      string `json:"url,omitempty"`
}

// Notification is an inbox entry. UserID 0 is visible to everyone.
type Notification struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}
