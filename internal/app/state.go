// Package app holds the client's global view state and the handlers that
// change it. State is only ever replaced through Store.Dispatch, which runs the
// pure Reduce function.
package app

import (
	"github.com/luckylubricants/rewards/internal/model"
)

// Tab is a top-level screen.
type Tab string

const (
	TabHome     Tab = "home"
	TabProducts Tab = "products"
	TabRewards  Tab = "rewards"
	TabAbout    Tab = "about"
	TabProfile  Tab = "profile"
)

// Tabs lists the tabs in display order.
var Tabs = []Tab{TabHome, TabProducts, TabRewards, TabAbout, TabProfile}

// ParseTab returns the tab named s.
func ParseTab(s string) (Tab, bool) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ToastKind selects how a toast is presented.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastCart    ToastKind = "cart"
	ToastReward  ToastKind = "reward"
	ToastError   ToastKind = "error"
	// ToastInstall stays up until dismissed.
	ToastInstall ToastKind = "install"
)

// Toast is a transient message.
type Toast struct {
	ID      int64
	Message string
	Kind    ToastKind
}

// ItemKind distinguishes the two things a detail modal can show.
type ItemKind string

const (
	ItemReward  ItemKind = "reward"
	ItemProduct ItemKind = "product"
)

// Item is the reward or product open in the detail modal.
type Item struct {
	Kind    ItemKind
	Reward  model.Reward
	Product model.Product
}

// Name returns the display name of the selected item.
func (i Item) Name() string {
	if i.Kind == ItemReward {
		return i.Reward.Name
	}
	return i.Product.Name
}

// State is the complete view state of the client.
type State struct {
	LoggedIn          bool
	ShowSplash        bool
	ActiveTab         Tab
	User              model.User
	Toast             *Toast
	Selected          *Item
	PreviewImage      string
	NotificationsOpen bool
	ScannerOpen       bool
	Loading           bool
	InstallAvailable  bool
}

// Initial is the state before the session check has run.
func Initial() State {
	return State{
		ShowSplash: true,
		ActiveTab:  TabHome,
		User:       model.Guest(),
	}
}
