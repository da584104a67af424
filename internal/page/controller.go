package page

import (
	"errors"
	"fmt"

	"cryo-dashboard/internal/state"
)

// ErrUnknownPage is returned for a page outside the route table.
var ErrUnknownPage = errors.New("unknown page")

// View is a rendered page ready for the browser.
type View struct {
	Page  state.Page
	Key   string
	Title string
	HTML  string
	Plots []string
}

// Controller switches the page on screen for one session.
type Controller struct {
	store *state.Store
	req   Requester
}

func NewController(store *state.Store, req Requester) *Controller {
	return &Controller{store: store, req: req}
}

// Current is the route of the page on screen.
func (c *Controller) Current() Route {
	return routes[c.store.Page()]
}

// Navigate makes p the current page and renders it against the store. With
// shouldUpdate the page's refresh requests are sent afterwards; without it
// nothing goes upstream. A request failure still returns the rendered view.
func (c *Controller) Navigate(p state.Page, shouldUpdate bool) (View, error) {
	route, ok := Lookup(p)
	if !ok {
		return View{}, fmt.Errorf("%w: %d", ErrUnknownPage, p)
	}
	c.store.SetPage(p)
	if shouldUpdate && p == state.PageDataManagement {
		c.store.SetListPage(1)
	}

	html, err := route.Render(c.store.Snapshot())
	if err != nil {
		return View{}, err
	}
	view := View{
		Page:  p,
		Key:   p.String(),
		Title: route.Title,
		HTML:  html,
		Plots: append([]string(nil), route.Plots...),
	}
	if !shouldUpdate {
		return view, nil
	}
	return view, RequestAll(c.req, route.Refresh)
}

// Refresh re-renders the current page without sending requests.
func (c *Controller) Refresh() (View, error) {
	return c.Navigate(c.store.Page(), false)
}

// Present reports whether target exists on screen right now. Patches to
// absent targets are dropped.
func (c *Controller) Present(target string) bool {
	for _, t := range ShellTargets {
		if t == target {
			return true
		}
	}
	return c.Current().Has(target)
}

// ExperimentsPage requests another page of the experiment list.
func (c *Controller) ExperimentsPage(n int) error {
	if n < 1 {
		n = 1
	}
	c.store.SetListPage(n)
	return c.req.RequestExperimentList(n)
}
