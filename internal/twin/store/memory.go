package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"

	pkgstore "github.com/luckylubricants/rewards/pkg/store"
)

// ManualVoucherCode is the code the client submits when the user types a
// voucher by hand. It is seeded as a reusable voucher.
const ManualVoucherCode = "MANUAL-VOUCHER-ENTRY"

var (
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrVoucherNotFound    = errors.New("invalid voucher code")
	ErrVoucherUsed        = errors.New("voucher already redeemed")
	ErrRewardNotFound     = errors.New("reward not found")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrProductNotFound    = errors.New("product not found")
	ErrCartEmpty          = errors.New("cart is empty")
)

// Seeded fixtures are hashed cheaply; registrations use the default cost.
const seedCost = bcrypt.MinCost

// MemoryStore holds all twin state in memory.
type MemoryStore struct {
	Users         *pkgstore.Store[User]
	Vouchers      *pkgstore.Store[Voucher]
	Transactions  *pkgstore.Store[Transaction]
	Rewards       *pkgstore.Store[Reward]
	Redemptions   *pkgstore.Store[Redemption]
	Products      *pkgstore.Store[Product]
	Cart          *pkgstore.Store[CartItem]
	Orders        *pkgstore.Store[Order]
	Tickets       *pkgstore.Store[Ticket]
	Banners       *pkgstore.Store[Banner]
	Notifications *pkgstore.Store[Notification]
	Clock         *pkgstore.Clock

	// mu serializes operations that touch more than one table.
	mu    sync.Mutex
	nodes *snowflake.Node
}

// New creates an empty MemoryStore on the real clock.
func New() *MemoryStore {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates an empty MemoryStore whose simulated clock runs on base.
func NewWithClock(base clockwork.Clock) *MemoryStore {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err) // node 1 is always within the node range
	}
	return &MemoryStore{
		Users:         pkgstore.New[User](),
		Vouchers:      pkgstore.New[Voucher](),
		Transactions:  pkgstore.New[Transaction](),
		Rewards:       pkgstore.New[Reward](),
		Redemptions:   pkgstore.New[Redemption](),
		Products:      pkgstore.New[Product](),
		Cart:          pkgstore.New[CartItem](),
		Orders:        pkgstore.New[Order](),
		Tickets:       pkgstore.New[Ticket](),
		Banners:       pkgstore.New[Banner](),
		Notifications: pkgstore.New[Notification](),
		Clock:         pkgstore.NewClock(base),
		nodes:         node,
	}
}

func (s *MemoryStore) now() string {
	return s.Clock.Now().UTC().Format(time.RFC3339)
}

func setID[T any](field func(*T) *int64) func(int64, *T) {
	return func(id int64, item *T) { *field(item) = id }
}

// --- Users ---

// CreateUser registers a user. Phone numbers are unique.
func (s *MemoryStore) CreateUser(u User, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, taken := s.Users.Find(func(o User) bool { return o.Phone == u.Phone }); taken {
		return User{}, ErrPhoneTaken
	}
	u.PasswordHash = string(hash)
	u.Password = ""
	u.CreatedAt = s.now()
	return s.Users.Insert(u, setID(func(u *User) *int64 { return &u.ID })), nil
}

// Authenticate finds the user whose phone or email matches identifier and
// checks the password.
func (s *MemoryStore) Authenticate(identifier, password string) (User, bool) {
	identifier = strings.TrimSpace(identifier)
	_, u, ok := s.Users.Find(func(u User) bool {
		return u.Phone == identifier || (u.Email != "" && strings.EqualFold(u.Email, identifier))
	})
	if !ok {
		return User{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, false
	}
	return u, true
}

// SetProfileImage records a new avatar URL.
func (s *MemoryStore) SetProfileImage(userID int64, url string) error {
	_, ok, _ := s.Users.Update(userID, func(u *User) error {
		u.ProfileImage = url
		return nil
	})
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// --- Wallet ---

// MintVoucher creates a fresh single-use voucher worth points.
func (s *MemoryStore) MintVoucher(points int) Voucher {
	return s.Vouchers.Insert(Voucher{Code: uuid.NewString(), Points: points},
		setID(func(v *Voucher) *int64 { return &v.ID }))
}

// ScanVoucher credits the voucher's points to userID and returns the points
// earned and the new balance.
func (s *MemoryStore) ScanVoucher(userID int64, code string) (earned, balance int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.Users.Get(userID)
	if !ok {
		return 0, 0, ErrUserNotFound
	}
	code = strings.TrimSpace(code)
	vid, v, ok := s.Vouchers.Find(func(v Voucher) bool { return strings.EqualFold(v.Code, code) })
	if !ok {
		return 0, 0, ErrVoucherNotFound
	}
	if !v.Reusable {
		if v.UsedBy != 0 {
			return 0, 0, ErrVoucherUsed
		}
		v.UsedBy = userID
		v.UsedAt = s.now()
		s.Vouchers.Set(vid, v)
	}

	user.Points += v.Points
	s.Users.Set(userID, user)
	s.ledger(userID, "credit", v.Points, "Voucher scan")
	return v.Points, user.Points, nil
}

func (s *MemoryStore) ledger(userID int64, typ string, points int, reason string) {
	s.Transactions.Insert(Transaction{
		UserID:    userID,
		Type:      typ,
		Points:    points,
		Reason:    reason,
		CreatedAt: s.now(),
	}, setID(func(t *Transaction) *int64 { return &t.ID }))
}

// TransactionsFor returns userID's ledger, newest first.
func (s *MemoryStore) TransactionsFor(userID int64) []Transaction {
	return newestFirst(s.Transactions.Filter(func(_ int64, t Transaction) bool { return t.UserID == userID }))
}

// --- Rewards ---

// Redeem spends the reward's cost from userID's balance.
func (s *MemoryStore) Redeem(userID, rewardID int64) (Redemption, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.Users.Get(userID)
	if !ok {
		return Redemption{}, 0, ErrUserNotFound
	}
	reward, ok := s.Rewards.Get(rewardID)
	if !ok {
		return Redemption{}, 0, ErrRewardNotFound
	}
	if user.Points < reward.PointsRequired {
		return Redemption{}, user.Points, ErrInsufficientPoints
	}

	user.Points -= reward.PointsRequired
	s.Users.Set(userID, user)
	s.ledger(userID, "debit", reward.PointsRequired, "Redeemed: "+reward.Title)
	red := s.Redemptions.Insert(Redemption{
		UserID:      userID,
		RewardID:    rewardID,
		RewardName:  reward.Title,
		PointsSpent: reward.PointsRequired,
		Code:        "LUCKY-" + strings.ToUpper(uuid.NewString()[:8]),
		Status:      "pending",
		RedeemedAt:  s.now(),
	}, setID(func(r *Redemption) *int64 { return &r.ID }))
	return red, user.Points, nil
}

// RedemptionsFor returns userID's claims, newest first.
func (s *MemoryStore) RedemptionsFor(userID int64) []Redemption {
	return newestFirst(s.Redemptions.Filter(func(_ int64, r Redemption) bool { return r.UserID == userID }))
}

// --- Products ---

// AddToCart adds one unit of productID to userID's cart and returns the
// number of units in the cart.
func (s *MemoryStore) AddToCart(userID, productID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Products.Get(productID); !ok {
		return 0, ErrProductNotFound
	}
	id, _, ok := s.Cart.Find(func(c CartItem) bool { return c.UserID == userID && c.ProductID == productID })
	if ok {
		s.Cart.Update(id, func(c *CartItem) error {
			c.Quantity++
			return nil
		})
	} else {
		s.Cart.Insert(CartItem{UserID: userID, ProductID: productID, Quantity: 1},
			setID(func(c *CartItem) *int64 { return &c.ID }))
	}

	total := 0
	for _, c := range s.Cart.Filter(func(_ int64, c CartItem) bool { return c.UserID == userID }) {
		total += c.Quantity
	}
	return total, nil
}

// PlaceOrder turns userID's cart into an order and empties the cart.
func (s *MemoryStore) PlaceOrder(userID int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ids      []int64
		products []int64
	)
	s.Cart.Filter(func(id int64, c CartItem) bool {
		if c.UserID == userID {
			ids = append(ids, id)
			products = append(products, c.ProductID)
		}
		return false
	})
	if len(ids) == 0 {
		return Order{}, ErrCartEmpty
	}
	for _, id := range ids {
		s.Cart.Delete(id)
	}
	return s.Orders.Insert(Order{
		OrderID:   s.nodes.Generate().String(),
		UserID:    userID,
		Products:  products,
		CreatedAt: s.now(),
	}, setID(func(o *Order) *int64 { return &o.ID })), nil
}

// --- Content ---

// CreateTicket records a support request.
func (s *MemoryStore) CreateTicket(userID int64, subject, message string) Ticket {
	return s.Tickets.Insert(Ticket{
		TicketID:  ksuid.New().String(),
		UserID:    userID,
		Subject:   subject,
		Message:   message,
		CreatedAt: s.now(),
	}, setID(func(t *Ticket) *int64 { return &t.ID }))
}

// NotificationsFor returns broadcast and personal notifications, newest first.
func (s *MemoryStore) NotificationsFor(userID int64) []Notification {
	return newestFirst(s.Notifications.Filter(func(_ int64, n Notification) bool {
		return n.UserID == 0 || n.UserID == userID
	}))
}

func newestFirst[T any](items []T) []T {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// --- Admin state ---

type stateSnapshot struct {
	Users         map[string]User         `json:"users"`
	Vouchers      map[string]Voucher      `json:"vouchers"`
	Transactions  map[string]Transaction  `json:"transactions"`
	Rewards       map[string]Reward       `json:"rewards"`
	Redemptions   map[string]Redemption   `json:"redemptions"`
	Products      map[string]Product      `json:"products"`
	Cart          map[string]CartItem     `json:"cart"`
	Orders        map[string]Order        `json:"orders"`
	Tickets       map[string]Ticket       `json:"tickets"`
	Banners       map[string]Banner       `json:"banners"`
	Notifications map[string]Notification `json:"notifications"`
}

// Snapshot returns full state as a JSON-serializable value.
func (s *MemoryStore) Snapshot() any {
	return stateSnapshot{
		Users:         s.Users.Snapshot(),
		Vouchers:      s.Vouchers.Snapshot(),
		Transactions:  s.Transactions.Snapshot(),
		Rewards:       s.Rewards.Snapshot(),
		Redemptions:   s.Redemptions.Snapshot(),
		Products:      s.Products.Snapshot(),
		Cart:          s.Cart.Snapshot(),
		Orders:        s.Orders.Snapshot(),
		Tickets:       s.Tickets.Snapshot(),
		Banners:       s.Banners.Snapshot(),
		Notifications: s.Notifications.Snapshot(),
	}
}

// LoadState replaces every table present in data. Users given a plain
// "password" get it hashed.
func (s *MemoryStore) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for k, u := range snap.Users {
		if u.Password == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), seedCost)
		if err != nil {
			return fmt.Errorf("hashing password for user %s: %w", k, err)
		}
		u.PasswordHash = string(hash)
		u.Password = ""
		snap.Users[k] = u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	load(s.Users, snap.Users)
	load(s.Vouchers, snap.Vouchers)
	load(s.Transactions, snap.Transactions)
	load(s.Rewards, snap.Rewards)
	load(s.Redemptions, snap.Redemptions)
	load(s.Products, snap.Products)
	load(s.Cart, snap.Cart)
	load(s.Orders, snap.Orders)
	load(s.Tickets, snap.Tickets)
	load(s.Banners, snap.Banners)
	load(s.Notifications, snap.Notifications)
	return nil
}

func load[T any](st *pkgstore.Store[T], snap map[string]T) {
	if snap != nil {
		st.LoadSnapshot(snap)
	}
}

// Reset clears all state and reloads seed fixtures.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	s.Users.Reset()
	s.Vouchers.Reset()
	s.Transactions.Reset()
	s.Rewards.Reset()
	s.Redemptions.Reset()
	s.Products.Reset()
	s.Cart.Reset()
	s.Orders.Reset()
	s.Tickets.Reset()
	s.Banners.Reset()
	s.Notifications.Reset()
	s.Clock.Reset()
	s.mu.Unlock()
	s.SeedDefaults()
}
