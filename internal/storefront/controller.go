// Package storefront holds the client-side state of a shopping session: the
// catalog view controller and the cart and wishlist stores. Remote access goes
// through injected interfaces, and the signed-in user is passed explicitly.
package storefront

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// State is the catalog view's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateEmpty
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateEmpty:
		return "empty"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// ViewMode is how the product list is laid out.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// DefaultFetchTimeout bounds a single catalog fetch.
const DefaultFetchTimeout = 15 * time.Second

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer request was issued before it resolved.
var ErrSuperseded = errors.New("storefront: request superseded")

// Fetcher loads one catalog page.
type Fetcher interface {
	Browse(ctx context.Context, q catalog.Query, pageSize int) (catalog.Result, error)
}

// Snapshot is an immutable view of the controller.
type Snapshot struct {
	State      State
	Query      catalog.Query
	Result     catalog.Result
	Err        error
	ViewMode   ViewMode
	Generation uint64
}

// ControllerOptions tunes a Controller. Zero values select the defaults.
type ControllerOptions struct {
	PageSize int
	Timeout  time.Duration
}

// Controller drives the catalog view. Every parameter change issues a new
// request with a higher generation; a result is only applied if its
// generation is still current, so the last request issued wins regardless of
// the order responses arrive in.
type Controller struct {
	fetcher  Fetcher
	codec    catalog.Codec
	pageSize int
	timeout  time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	gen         uint64
	cancel      context.CancelFunc
	snap        Snapshot
	subscribers map[int]chan Snapshot
	nextSub     int
}

// NewController creates an idle controller with the default query.
func NewController(fetcher Fetcher, codec catalog.Codec, opts ControllerOptions) *Controller {
	if opts.PageSize < 1 || opts.PageSize > catalog.MaxPageSize {
		opts.PageSize = catalog.DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	return &Controller{
		fetcher:  fetcher,
		codec:    codec,
		pageSize: opts.PageSize,
		timeout:  opts.Timeout,
		logger:   util.GetLogger(),
		snap: Snapshot{
			State:    StateIdle,
			Query:    catalog.Query{}.Normalize(codec.PriceCeiling),
			ViewMode: ViewGrid,
		},
		subscribers: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// URL returns the canonical query string for the current parameters.
func (c *Controller) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec.Encode(c.snap.Query)
}

// Subscribe returns a channel that always holds the most recent snapshot not
// yet received. Intermediate snapshots may be skipped by a slow reader but the
// latest one is never lost. The returned func stops the subscription.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	c.subscribers[id] = ch
	ch <- c.snap

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

// publishLocked must be called with mu held.
func (c *Controller) publishLocked() {
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- c.snap
	}
}

// ToggleViewMode switches between grid and list without fetching.
func (c *Controller) ToggleViewMode() ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.ViewMode == ViewGrid {
		c.snap.ViewMode = ViewList
	} else {
		c.snap.ViewMode = ViewGrid
	}
	c.publishLocked()
	return c.snap.ViewMode
}

// Apply loads the catalog for q. It blocks until the fetch resolves. If a
// newer request was issued meanwhile, the result is dropped and Apply returns
// the newer state together with ErrSuperseded.
func (c *Controller) Apply(ctx context.Context, q catalog.Query) (Snapshot, error) {
	q = q.Normalize(c.codec.PriceCeiling)
	if err := q.Validate(); err != nil {
		return c.Snapshot(), err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.snap.State = StateLoading
	c.snap.Query = q
	c.snap.Err = nil
	c.snap.Generation = gen
	c.publishLocked()
	c.mu.Unlock()

	res, err := c.fetcher.Browse(fetchCtx, q, c.pageSize)
	if err != nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperr.ErrDataUnavailable) {
		err = apperr.Unavailable("browse catalog", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.Debug("Discarding superseded catalog result",
			zap.Uint64("generation", gen),
			zap.Uint64("current", c.gen))
		return c.snap, ErrSuperseded
	}
	c.cancel = nil

	switch {
	case err != nil:
		c.snap.State = StateErrored
		c.snap.Err = err
		c.snap.Result = catalog.Result{}
	case len(res.Items) == 0:
		c.snap.State = StateEmpty
		c.snap.Result = res
	default:
		c.snap.State = StateLoaded
		c.snap.Result = res
	}
	c.publishLocked()
	return c.snap, err
}

func (c *Controller) current() catalog.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Query
}

// SetFilter replaces the facet filter and goes back to page 1.
func (c *Controller) SetFilter(ctx context.Context, f catalog.Filter) (Snapshot, error) {
	q := c.current()
	q.Filter = f
	q.Page = 1
	return c.Apply(ctx, q)
}

// SetSort changes the ordering and goes back to page 1.
func (c *Controller) SetSort(ctx context.Context, s catalog.Sort) (Snapshot, error) {
	q := c.current()
	q.Sort = s
	q.Page = 1
	return c.Apply(ctx, q)
}

// SetSearch changes the free-text search and goes back to page 1.
func (c *Controller) SetSearch(ctx context.Context, search string) (Snapshot, error) {
	q := c.current()
	q.Search = search
	q.Page = 1
	return c.Apply(ctx, q)
}

// SetPage moves to another page of the same result set.
func (c *Controller) SetPage(ctx context.Context, page int) (Snapshot, error) {
	if page < 1 {
		return c.Snapshot(), apperr.Invalid("page must be at least 1")
	}
	q := c.current()
	q.Page = page
	return c.Apply(ctx, q)
}

// Navigate restores the state encoded in a query string, as on back/forward.
func (c *Controller) Navigate(ctx context.Context, rawQuery string) (Snapshot, error) {
	return c.Apply(ctx, c.codec.Decode(rawQuery))
}

// Retry re-issues the current parameters unchanged.
func (c *Controller) Retry(ctx context.Context) (Snapshot, error) {
	return c.Apply(ctx, c.current())
}
