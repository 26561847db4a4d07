package lifecycle

import "fmt"

// Route is a tagged navigation target. Each variant carries exactly the
// fields its screen requires and is validated at the navigation boundary.
type Route interface {
	Validate() error
	routeName() string
}

// SignInRoute resets the stack to the sign-in entry point (session expired).
type SignInRoute struct{}

// Validate implements Route.
func (SignInRoute) Validate() error   { return nil }
func (SignInRoute) routeName() string { return "sign_in" }

// TabRootRoute resets the stack to the tab root (scheduled ride confirmed).
type TabRootRoute struct{}

// Validate implements Route.
func (TabRootRoute) Validate() error   { return nil }
func (TabRootRoute) routeName() string { return "tab_root" }

// ActiveRideRoute opens the active-ride screen with the resolved ride
// payload. The payload is a deep clone: plain decoded data only, safe to
// carry across the navigation boundary.
type ActiveRideRoute struct {
	Ride map[string]interface{}
}

// Validate implements Route.
func (r ActiveRideRoute) Validate() error {
	if len(r.Ride) == 0 {
		return fmt.Errorf("active ride route requires a ride payload")
	}
	return nil
}

func (ActiveRideRoute) routeName() string { return "active_ride" }

// RouteName returns the route's stable name, for logging.
func RouteName(route Route) string {
	return route.routeName()
}

// Navigator is the shell's navigation surface.
type Navigator interface {
	Navigate(route Route) error
	Back()
}
