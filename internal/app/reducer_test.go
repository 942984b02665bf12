package app

import (
	"testing"

	"github.com/luckylubricants/rewards/internal/model"
)

func TestReduceStaleToastDismissal(t *testing.T) {
	s := Reduce(Initial(), ToastShown{Toast: Toast{ID: 2, Message: "newer"}})
	s = Reduce(s, ToastDismissed{ID: 1})
	if s.Toast == nil || s.Toast.Message != "newer" {
		t.Fatalf("stale dismissal hid the current toast: %+v", s.Toast)
	}
	s = Reduce(s, ToastDismissed{ID: 2})
	if s.Toast != nil {
		t.Error("toast not dismissed")
	}
}

func TestReduceLoggedOutResetsUser(t *testing.T) {
	s := Initial()
	s = Reduce(s, LoggedIn{})
	s = Reduce(s, UserSynced{User: model.User{Profile: model.Profile{Name: "Ravi"}, Points: 450}})
	s = Reduce(s, TabSelected{Tab: TabProfile})
	s = Reduce(s, ItemSelected{Item: Item{Kind: ItemReward}})

	s = Reduce(s, LoggedOut{})
	if s.LoggedIn || s.ShowSplash {
		t.Errorf("LoggedIn=%v ShowSplash=%v", s.LoggedIn, s.ShowSplash)
	}
	if s.User.Name != model.GuestName || s.User.Points != 0 {
		t.Errorf("user = %+v, want guest", s.User)
	}
	if s.ActiveTab != TabHome || s.Selected != nil {
		t.Errorf("tab=%s selected=%v", s.ActiveTab, s.Selected)
	}
}

func TestReduceIgnoresUnknownTab(t *testing.T) {
	s := Reduce(Initial(), TabSelected{Tab: "settings"})
	if s.ActiveTab != TabHome {
		t.Errorf("ActiveTab = %s", s.ActiveTab)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	in := Initial()
	out := Reduce(in, ItemSelected{Item: Item{Kind: ItemProduct, Product: model.Product{Name: "Oil"}}})
	if in.Selected != nil {
		t.Error("input state mutated")
	}
	if out.Selected == nil || out.Selected.Name() != "Oil" {
		t.Errorf("Selected = %+v", out.Selected)
	}
}

func TestStoreSubscribe(t *testing.T) {
	st := NewStore(Initial())
	var seen []Tab
	unsub := st.Subscribe(func(s State) { seen = append(seen, s.ActiveTab) })
	st.Dispatch(TabSelected{Tab: TabRewards})
	st.Dispatch(TabSelected{Tab: TabAbout})
	unsub()
	st.Dispatch(TabSelected{Tab: TabHome})

	if len(seen) != 2 || seen[0] != TabRewards || seen[1] != TabAbout {
		t.Errorf("seen = %v", seen)
	}
}

func TestWhatsAppLink(t *testing.T) {
	got := WhatsAppLink("+91 98765-43210", "Oil & Grease +1")
	want := "https://wa.me/919876543210?text=Oil%20%26%20Grease%20%2B1"
	if got != want {
		t.Errorf("WhatsAppLink = %s, want %s", got, want)
	}
	if !CanClaim(500, 500) || CanClaim(499, 500) {
		t.Error("CanClaim boundary wrong")
	}
}
