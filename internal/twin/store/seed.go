package store

import (
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Seeded demo accounts. Both use DemoPassword.
const (
	DemoPhone    = "9876543210"
	DemoEmail    = "ravi@example.com"
	DemoPassword = "lucky123"
	// ShortPhone belongs to a member with 400 points, short of the Lucky Cap.
	ShortPhone = "9123456780"
)

// SeedVoucher returns the deterministic code of the n-th seeded voucher
// (1-based), so demos and tests can print or scan it.
func SeedVoucher(n int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://luckylubricants.in/voucher/"+strconv.Itoa(n))).String()
}

// SeedDefaults populates the store with default fixture data.
func (s *MemoryStore) SeedDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now()

	hash, _ := bcrypt.GenerateFromPassword([]byte(DemoPassword), seedCost)
	for _, u := range []User{
		{Name: "Ravi Kumar", Phone: DemoPhone, Email: DemoEmail, City: "Ludhiana", State: "Punjab", Points: 600},
		{Name: "Asha Verma", Phone: ShortPhone, Email: "asha@example.com", City: "Jaipur", State: "Rajasthan", Points: 400},
	} {
		u.PasswordHash = string(hash)
		u.CreatedAt = ts
		u = s.Users.Insert(u, setID(func(u *User) *int64 { return &u.ID }))
		s.Transactions.Insert(Transaction{
			UserID: u.ID, Type: "credit", Points: u.Points, Reason: "Welcome bonus", CreatedAt: ts,
		}, setID(func(t *Transaction) *int64 { return &t.ID }))
	}

	for i, pts := range []int{100, 250, 50} {
		s.Vouchers.Insert(Voucher{Code: SeedVoucher(i + 1), Points: pts},
			setID(func(v *Voucher) *int64 { return &v.ID }))
	}
	s.Vouchers.Insert(Voucher{Code: ManualVoucherCode, Points: 50, Reusable: true},
		setID(func(v *Voucher) *int64 { return &v.ID }))

	for _, r := range []Reward{
		{Title: "Keychain", Description: "Metal Lucky keychain", ImageURL: "https://cdn.luckylubricants.in/rewards/keychain.png", PointsRequired: 150},
		{Title: "Lucky Cap", Description: "Embroidered cotton cap", ImageURL: "https://cdn.luckylubricants.in/rewards/cap.png", PointsRequired: 500},
		{Title: "Lucky T-Shirt", Description: "Mechanic crew t-shirt", ImageURL: "https://cdn.luckylubricants.in/rewards/tshirt.png", PointsRequired: 800},
		{Title: "Engine Oil 1L", Description: "Lucky 4T Plus 20W-40, 1 litre", ImageURL: "https://cdn.luckylubricants.in/rewards/oil.png", PointsRequired: 1200},
	} {
		s.Rewards.Insert(r, setID(func(r *Reward) *int64 { return &r.ID }))
	}

	for _, p := range []Product{
		{Name: "Lucky 4T Plus 20W-40", Description: "Engine oil for four-stroke motorcycles", Image: "https://cdn.luckylubricants.in/products/4t-plus.png", Price: "₹320", Specs: []string{"API SL", "JASO MA2", "1 L"}},
		{Name: "Lucky Diesel Max 15W-40", Description: "Heavy duty diesel engine oil", Image: "https://cdn.luckylubricants.in/products/diesel-max.png", Price: "₹1450", Specs: []string{"API CI-4", "5 L"}},
		{Name: "Lucky Gear Oil 90", Description: "Gear and transmission oil", Image: "https://cdn.luckylubricants.in/products/gear-90.png", Price: "₹280", Specs: []string{"API GL-4", "1 L"}},
	} {
		s.Products.Insert(p, setID(func(p *Product) *int64 { return &p.ID }))
	}

	for _, b := range []Banner{
		{Title: "Scan & Win", ImageURL: "https://cdn.luckylubricants.in/banners/scan-win.png"},
		{Title: "Diesel Max launch", ImageURL: "https://cdn.luckylubricants.in/banners/diesel-max.png", URL: "https://luckylubricants.in/diesel-max"},
	} {
		s.Banners.Insert(b, setID(func(b *Banner) *int64 { return &b.ID }))
	}

	s.Notifications.Insert(Notification{
		Title: "Welcome to Lucky Rewards", Body: "Scan the QR code inside every pack to earn points.", CreatedAt: ts,
	}, setID(func(n *Notification) *int64 { return &n.ID }))
	s.Notifications.Insert(Notification{
		UserID: 1, Title: "Bonus points", Body: "Your welcome bonus of 600 points has been credited.", CreatedAt: ts,
	}, setID(func(n *Notification) *int64 { return &n.ID }))
}
