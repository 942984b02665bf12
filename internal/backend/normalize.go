package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luckylubricants/rewards/internal/model"
)

// The backend answers with camelCase and snake_case spellings of the same field,
// strings where numbers are expected and vice versa. The wire* types below accept
// every observed spelling and collapse into one model type on ingress.

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// flexInt accepts a JSON number or numeric string. Unparseable values decode as 0.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexBool accepts true/false, 0/1 and their string forms.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.Trim(string(bytes.TrimSpace(b)), `"`) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...*flexInt) int64 {
	for _, v := range vals {
		if v != nil {
			return int64(*v)
		}
	}
	return 0
}

func firstBool(vals ...*flexBool) bool {
	for _, v := range vals {
		if v != nil {
			return bool(*v)
		}
	}
	return false
}

// decodeList decodes a top-level JSON array element by element. Anything that is
// not an array yields an empty list; elements that fail to decode are skipped.
func decodeList[W any, M any](raw []byte, conv func(W) M) []M {
	out := []M{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return out
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return out
	}
	for _, e := range elems {
		var w W
		if err := json.Unmarshal(e, &w); err != nil {
			continue
		}
		out = append(out, conv(w))
	}
	return out
}

type wireProfile struct {
	ID                flexInt    `json:"id"`
	UserID            flexInt    `json:"user_id"`
	Name              string     `json:"name"`
	FullName          string     `json:"full_name"`
	Email             string     `json:"email"`
	Phone             flexString `json:"phone"`
	City              string     `json:"city"`
	State             string     `json:"state"`
	ProfileImage      string     `json:"profile_image"`
	ProfileImageCamel string     `json:"profileImage"`
	Avatar            string     `json:"avatar"`
}

func (w wireProfile) model() model.Profile {
	id := int64(w.ID)
	if id == 0 {
		id = int64(w.UserID)
	}
	return model.Profile{
		ID:     id,
		Name:   firstString(w.Name, w.FullName),
		Email:  w.Email,
		Phone:  string(w.Phone),
		City:   w.City,
		State:  w.State,
		Avatar: firstString(w.ProfileImage, w.ProfileImageCamel, w.Avatar),
	}
}

type wireBalance struct {
	Points  *flexInt `json:"points"`
	Balance *flexInt `json:"balance"`
}

func (w wireBalance) model() model.Balance {
	p := firstInt(w.Points, w.Balance)
	if p < 0 {
		p = 0
	}
	return model.Balance{Points: int(p)}
}

type wireNotification struct {
	ID        flexString `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Body      string     `json:"body"`
	Time      string     `json:"time"`
	CreatedAt string     `json:"created_at"`
	IsRead    *flexBool  `json:"isRead"`
	IsReadS   *flexBool  `json:"is_read"`
	Read      *flexBool  `json:"read"`
}

func (w wireNotification) model() model.Notification {
	return model.Notification{
		ID:      string(w.ID),
		Title:   w.Title,
		Message: firstString(w.Message, w.Body),
		Time:    firstString(w.Time, w.CreatedAt),
		Read:    firstBool(w.IsRead, w.IsReadS, w.Read),
	}
}

type wireProduct struct {
	ID          flexString `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	ImageURL    string     `json:"image_url"`
	Price       flexString `json:"price"`
	Specs       []string   `json:"specs"`
}

func (w wireProduct) model() model.Product {
	return model.Product{
		ID:          string(w.ID),
		Name:        w.Name,
		Description: w.Description,
		Image:       firstString(w.Image, w.ImageURL),
		Price:       string(w.Price),
		Specs:       w.Specs,
	}
}

type wireReward struct {
	ID                  flexString `json:"id"`
	Name                string     `json:"name"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Image               string     `json:"image"`
	ImageURL            string     `json:"image_url"`
	PointsRequired      *flexInt   `json:"pointsRequired"`
	PointsRequiredSnake *flexInt   `json:"points_required"`
}

func (w wireReward) model() model.Reward {
	return model.Reward{
		ID:             string(w.ID),
		Name:           firstString(w.Name, w.Title),
		Description:    w.Description,
		Image:          firstString(w.Image, w.ImageURL),
		PointsRequired: int(firstInt(w.PointsRequired, w.PointsRequiredSnake)),
	}
}

type wireTransaction struct {
	ID          flexString `json:"id"`
	Type        string     `json:"type"`
	Amount      flexInt    `json:"amount"`
	Points      flexInt    `json:"points"`
	Description string     `json:"description"`
	Reason      string     `json:"reason"`
	Date        string     `json:"date"`
	CreatedAt   string     `json:"created_at"`
}

func (w wireTransaction) model() model.Transaction {
	amount := int(w.Amount)
	if amount == 0 {
		amount = int(w.Points)
	}
	dir := model.Credit
	switch strings.ToLower(w.Type) {
	case "debit", "spend", "redeem", "redemption":
		dir = model.Debit
	}
	if amount < 0 {
		amount = -amount
		dir = model.Debit
	}
	return model.Transaction{
		ID:          string(w.ID),
		Type:        dir,
		Amount:      amount,
		Description: firstString(w.Description, w.Reason),
		Date:        firstString(w.Date, w.CreatedAt),
	}
}

type wireRedemption struct {
	ID          flexString `json:"id"`
	RewardName  string     `json:"reward_name"`
	RewardCamel string     `json:"rewardName"`
	Name        string     `json:"name"`
	PointsSpent *flexInt   `json:"points_spent"`
	PointsCamel *flexInt   `json:"pointsSpent"`
	Points      *flexInt   `json:"points"`
	Status      string     `json:"status"`
	Date        string     `json:"date"`
	CreatedAt   string     `json:"created_at"`
	RedeemedAt  string     `json:"redeemed_at"`
}

func (w wireRedemption) model() model.Redemption {
	return model.Redemption{
		ID:          string(w.ID),
		RewardName:  firstString(w.RewardName, w.RewardCamel, w.Name),
		PointsSpent: int(firstInt(w.PointsSpent, w.PointsCamel, w.Points)),
		Status:      w.Status,
		Date:        firstString(w.Date, w.RedeemedAt, w.CreatedAt),
	}
}

type wireBanner struct {
	ID       flexString `json:"id"`
	Title    string     `json:"title"`
	Image    string     `json:"image"`
	ImageURL string     `json:"image_url"`
	Link     string     `json:"link"`
	URL      string     `json:"url"`
}

func (w wireBanner) model() model.Banner {
	return model.Banner{
		ID:    string(w.ID),
		Title: w.Title,
		Image: firstString(w.Image, w.ImageURL),
		Link:  firstString(w.Link, w.URL),
	}
}

type wireLogin struct {
	AccessToken string   `json:"access_token"`
	AccessCamel string   `json:"accessToken"`
	Message     string   `json:"message"`
	UserID      *flexInt `json:"userId"`
	ID          *flexInt `json:"id"`
	User        *struct {
		ID *flexInt `json:"id"`
	} `json:"user"`
}

func (w wireLogin) model() model.LoginResult {
	res := model.LoginResult{
		AccessToken: firstString(w.AccessToken, w.AccessCamel),
		Message:     w.Message,
	}
	var userID *flexInt
	if w.User != nil {
		userID = w.User.ID
	}
	res.UserID = firstInt(userID, w.UserID, w.ID)
	if res.UserID == 0 && res.AccessToken != "" {
		res.UserID = subjectID(res.AccessToken)
	}
	return res
}

// subjectID reads a numeric "sub" claim without verifying the token. The client
// never holds the signing key; the id is only used to address its own requests.
func subjectID(token string) int64 {
	tok, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return 0
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

type wireScan struct {
	PointsEarned *flexInt `json:"points_earned"`
	PointsCamel  *flexInt `json:"pointsEarned"`
	Message      string   `json:"message"`
}

func (w wireScan) model() model.ScanResult {
	return model.ScanResult{
		PointsEarned: int(firstInt(w.PointsEarned, w.PointsCamel)),
		Message:      w.Message,
	}
}

type wireRedeem struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type wireOrder struct {
	ID      flexString `json:"order_id"`
	IDCamel flexString `json:"orderId"`
	Message string     `json:"message"`
}

type wireTicket struct {
	ID      flexString `json:"ticket_id"`
	IDCamel flexString `json:"ticketId"`
	Message string     `json:"message"`
}

type wireUpload struct {
	ProfileImage string `json:"profile_image"`
	ImageURL     string `json:"image_url"`
	URL          string `json:"url"`
}
