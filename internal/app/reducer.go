package app

import "github.com/luckylubricants/rewards/internal/model"

// Action describes one state transition.
type Action interface {
	action()
}

// Booted records the startup session decision.
type Booted struct {
	LoggedIn   bool
	ShowSplash bool
}

// UserSynced replaces the whole view-model.
type UserSynced struct{ User model.User }

type LoggedIn struct{}

type LoggedOut struct{}

type SplashDismissed struct{}

type TabSelected struct{ Tab Tab }

type ToastShown struct{ Toast Toast }

type ToastDismissed struct{ ID int64 }

type ItemSelected struct{ Item Item }

type ItemClosed struct{}

type PreviewOpened struct{ URL string }

type PreviewClosed struct{}

type NotificationsToggled struct{ Open bool }

type ScannerToggled struct{ Open bool }

type LoadingSet struct{ Loading bool }

type InstallOffered struct{ Available bool }

func (Booted) action()               {}
func (UserSynced) action()           {}
func (LoggedIn) action()             {}
func (LoggedOut) action()            {}
func (SplashDismissed) action()      {}
func (TabSelected) action()          {}
func (ToastShown) action()           {}
func (ToastDismissed) action()       {}
func (ItemSelected) action()         {}
func (ItemClosed) action()           {}
func (PreviewOpened) action()        {}
func (PreviewClosed) action()        {}
func (NotificationsToggled) action() {}
func (ScannerToggled) action()       {}
func (LoadingSet) action()           {}
func (InstallOffered) action()       {}

// Reduce returns the state after applying a to s. It has no side effects.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Booted:
		s.LoggedIn = a.LoggedIn
		s.ShowSplash = a.ShowSplash
	case LoggedIn:
		s.LoggedIn = true
		s.ShowSplash = false
		s.ActiveTab = TabHome
	case LoggedOut:
		next := Initial()
		next.ShowSplash = false
		next.InstallAvailable = s.InstallAvailable
		next.Toast = s.Toast
		return next
	case SplashDismissed:
		s.ShowSplash = false
	case TabSelected:
		if _, ok := ParseTab(string(a.Tab)); ok {
			s.ActiveTab = a.Tab
		}
	case UserSynced:
		s.User = a.User
	case ToastShown:
		t := a.Toast
		s.Toast = &t
	case ToastDismissed:
		// A stale timer must not hide a newer toast.
		if s.Toast != nil && s.Toast.ID == a.ID {
			s.Toast = nil
		}
	case ItemSelected:
		it := a.Item
		s.Selected = &it
	case ItemClosed:
		s.Selected = nil
	case PreviewOpened:
		s.PreviewImage = a.URL
	case PreviewClosed:
		s.PreviewImage = ""
	case NotificationsToggled:
		s.NotificationsOpen = a.Open
	case ScannerToggled:
		s.ScannerOpen = a.Open
	case LoadingSet:
		s.Loading = a.Loading
	case InstallOffered:
		s.InstallAvailable = a.Available
	}
	return s
}
