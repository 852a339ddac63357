package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/payment"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for store.Store.
type memStore struct {
	mu        sync.Mutex
	seq       int
	products  map[string]*models.Product
	versions  map[string]*models.ProductVersion
	reviews   []models.Review
	cart      map[string][]models.CartItem
	wishlist  map[string][]models.WishlistItem
	orders    []*models.Order
	purchased map[string]bool
	nav       []models.NavItem
	settings  map[string]string
	profiles  map[string]*models.Profile

	listCalls   int
	orderErrs   []error
	orderWrites int
	// onOrderRead runs before GetOrderByID looks the order up
	onOrderRead func()
	// onKeyLookup runs after GetOrderByIdempotencyKey found nothing
	onKeyLookup func()
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[string]*models.Product{},
		versions:  map[string]*models.ProductVersion{},
		cart:      map[string][]models.CartItem{},
		wishlist:  map[string][]models.WishlistItem{},
		purchased: map[string]bool{},
		settings:  map[string]string{},
		profiles:  map[string]*models.Profile{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addProduct(title, price string) *models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &models.Product{
		ID:        m.nextID("p"),
		Title:     title,
		Price:     decimal.RequireFromString(price),
		Platform:  "WordPress",
		Category:  "Plugins",
		Author:    "Acme",
		CreatedAt: time.Now(),
	}
	m.products[p.ID] = p
	return p
}

func (m *memStore) setPrice(id, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].Price = decimal.RequireFromString(price)
}

func (m *memStore) ListProducts(ctx context.Context, p catalog.ListParams) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	var matched []models.Product
	for _, prod := range m.products {
		if p.Filter.Matches(*prod) {
			matched = append(matched, *prod)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	start := p.Offset()
	if start >= total {
		return []models.Product{}, total, nil
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetProductVersions(ctx context.Context, productID string) ([]models.ProductVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ProductVersion{}
	for _, v := range m.versions {
		if v.ProductID == productID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memStore) GetProductReviews(ctx context.Context, productID string, approvedOnly bool) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if r.ProductID == productID && (!approvedOnly || r.Status == models.ReviewStatusApproved) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateReview(ctx context.Context, r *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[r.ProductID]; !ok {
		return apperr.NotFound("product", r.ProductID)
	}
	r.ID = m.nextID("r")
	r.Status = models.ReviewStatusPending
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *memStore) GetNavItems(ctx context.Context) ([]models.NavItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.NavItem{}, m.nav...), nil
}

func (m *memStore) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CartItem{}
	for _, line := range m.cart[userID] {
		line.Product = *m.products[line.ProductID]
		out = append(out, line)
	}
	return out, nil
}

func (m *memStore) AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.cart[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += quantity
			item := lines[i]
			return &item, nil
		}
	}
	item := models.CartItem{ID: m.nextID("c"), UserID: userID, ProductID: productID, Quantity: quantity}
	m.cart[userID] = append(lines, item)
	return &item, nil
}

func (m *memStore) UpdateCartQuantity(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, line := range m.cart[userID] {
		if line.ProductID == productID {
			m.cart[userID][i].Quantity = quantity
			item := m.cart[userID][i]
			return &item, nil
		}
	}
	return nil, apperr.NotFound("cart item", productID)
}

func (m *memStore) RemoveFromCart(ctx context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keep []models.CartItem
	for _, line := range m.cart[userID] {
		if line.ProductID != productID {
			keep = append(keep, line)
		}
	}
	m.cart[userID] = keep
	return nil
}

func (m *memStore) GetWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WishlistItem{}, m.wishlist[userID]...), nil
}

func (m *memStore) AddToWishlist(ctx context.Context, userID, productID string) (*models.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wishlist[userID] {
		if w.ProductID == productID {
			return &w, nil
		}
	}
	w := models.WishlistItem{ID: m.nextID("w"), UserID: userID, ProductID: productID}
	m.wishlist[userID] = append(m.wishlist[userID], w)
	return &w, nil
}

func (m *memStore) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keep []models.WishlistItem
	for _, w := range m.wishlist[userID] {
		if w.ProductID != productID {
			keep = append(keep, w)
		}
	}
	m.wishlist[userID] = keep
	return nil
}

func (m *memStore) CreateOrderTx(ctx context.Context, order *models.Order, cartItemIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderWrites++
	if len(m.orderErrs) > 0 {
		err := m.orderErrs[0]
		m.orderErrs = m.orderErrs[1:]
		if err != nil {
			return err
		}
	}

	order.ID = m.nextID("o")
	order.CreatedAt = time.Now()
	cp := *order
	cp.Items = append([]models.OrderItem{}, order.Items...)
	m.orders = append(m.orders, &cp)

	drop := map[string]bool{}
	for _, id := range cartItemIDs {
		drop[id] = true
	}
	var keep []models.CartItem
	for _, line := range m.cart[order.UserID] {
		if !drop[line.ID] {
			keep = append(keep, line)
		}
	}
	m.cart[order.UserID] = keep
	return nil
}

func (m *memStore) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	m.mu.Lock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := *o
			m.mu.Unlock()
			return &cp, nil
		}
	}
	hook := m.onKeyLookup
	m.onKeyLookup = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if m.onOrderRead != nil {
		m.onOrderRead()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("order", id)
}

func (m *memStore) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("payment", paymentID)
}

func (m *memStore) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].UserID == userID {
			out = append(out, *m.orders[i])
		}
	}
	return out, nil
}

func (m *memStore) ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			o.Status = status
			return nil
		}
	}
	return apperr.NotFound("order", orderID)
}

func (m *memStore) SettleOrder(ctx context.Context, orderID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			if o.Status != models.OrderStatusPending {
				return false, nil
			}
			o.Status = status
			return true, nil
		}
	}
	return false, apperr.NotFound("order", orderID)
}

func (m *memStore) GetVersionByID(ctx context.Context, id string) (*models.ProductVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, apperr.NotFound("version", id)
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purchased[userID+"|"+productID], nil
}

func (m *memStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID("p")
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return apperr.NotFound("product", p.ID)
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return apperr.Invalid("product %s has orders and cannot be deleted", id)
			}
		}
	}
	if _, ok := m.products[id]; !ok {
		return apperr.NotFound("product", id)
	}
	delete(m.products, id)
	return nil
}

func (m *memStore) AddVersion(ctx context.Context, v *models.ProductVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[v.ProductID]; !ok {
		return apperr.NotFound("product", v.ProductID)
	}
	v.ID = m.nextID("v")
	v.CreatedAt = time.Now()
	cp := *v
	m.versions[v.ID] = &cp
	return nil
}

func (m *memStore) SetVersionFile(ctx context.Context, versionID, path string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return apperr.NotFound("version", versionID)
	}
	v.FilePath, v.FileSize = path, size
	return nil
}

func (m *memStore) EnsureProfile(ctx context.Context, u models.User) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[u.ID]
	if !ok {
		p = &models.Profile{ID: u.ID, Role: u.Role}
		m.profiles[u.ID] = p
	}
	p.Email = u.Email
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateProfile(ctx context.Context, in models.Profile) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[in.ID]
	if !ok {
		return nil, apperr.NotFound("user", in.ID)
	}
	p.FirstName, p.LastName, p.AvatarURL = in.FirstName, in.LastName, in.AvatarURL
	cp := *p
	return &cp, nil
}

func (m *memStore) ListProfiles(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	return []models.Profile{}, nil
}

func (m *memStore) UpdateUserRole(ctx context.Context, userID, role string) (*models.Profile, error) {
	return &models.Profile{ID: userID, Role: role}, nil
}

func (m *memStore) ListReviews(ctx context.Context, status string, limit, offset int) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpdateReviewStatus(ctx context.Context, reviewID, status string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reviews {
		if m.reviews[i].ID == reviewID {
			m.reviews[i].Status = status
			return m.reviews[i].ProductID, nil
		}
	}
	return "", apperr.NotFound("review", reviewID)
}

func (m *memStore) GetDashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.DashboardStats{ProductsCount: len(m.products), OrdersCount: len(m.orders)}, nil
}

func (m *memStore) GetSettings(ctx context.Context) ([]models.ConfigItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ConfigItem{}
	for k, v := range m.settings {
		out = append(out, models.ConfigItem{Name: k, Value: v})
	}
	return out, nil
}

func (m *memStore) PutSetting(ctx context.Context, name, value string) (*models.ConfigItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[name] = value
	return &models.ConfigItem{Name: name, Value: value}, nil
}

func (m *memStore) ReplaceNavItems(ctx context.Context, items []models.NavItem) ([]models.NavItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nav = append([]models.NavItem{}, items...)
	return m.nav, nil
}

// memCache is a map-backed Cache.
type memCache struct {
	mu   sync.Mutex
	gen  int64
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) CatalogGeneration(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, c.err
}

func (c *memCache) InvalidateCatalog(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.gen++
	return c.gen, nil
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

// memLocker hands out one lock per key.
type memLocker struct {
	mu       sync.Mutex
	held     map[string]string
	extended int
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]string{}}
}

func (l *memLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *memLocker) ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extended++
	return l.held[key] == token, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *memLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// memEvents records published events.
type memEvents struct {
	mu         sync.Mutex
	placed     []*models.OrderPlacedEvent
	failed     []*models.CheckoutFailedEvent
	changed    []*models.ProductChangedEvent
	downloaded []*models.ProductDownloadedEvent
	err        error
}

func (e *memEvents) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placed = append(e.placed, event)
	return e.err
}

func (e *memEvents) PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, event)
	return e.err
}

func (e *memEvents) PublishProductChanged(ctx context.Context, event *models.ProductChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.changed = append(e.changed, event)
	return nil
}

func (e *memEvents) PublishProductDownloaded(ctx context.Context, event *models.ProductDownloadedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.downloaded = append(e.downloaded, event)
	return e.err
}

// memFiles keeps uploads in memory and signs nothing.
type memFiles struct {
	objects map[string][]byte
}

func (f *memFiles) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return 0, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = buf.Bytes()
	return n, nil
}

func (f *memFiles) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *memFiles) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://files.test/%s?expires=%d", key, int(expiry.Seconds())), nil
}

// stubGateway charges through an optional hook and records refunds.
type stubGateway struct {
	mu        sync.Mutex
	charges   []models.CartSnapshot
	refunds   []string
	onCharge  func(snap models.CartSnapshot) (payment.Receipt, error)
	refundErr error
}

func (g *stubGateway) Charge(ctx context.Context, snap models.CartSnapshot) (payment.Receipt, error) {
	g.mu.Lock()
	g.charges = append(g.charges, snap)
	n := len(g.charges)
	hook := g.onCharge
	g.mu.Unlock()

	if hook != nil {
		return hook(snap)
	}
	return payment.Receipt{
		Reference: fmt.Sprintf("sim_%d", n),
		Status:    payment.StatusSucceeded,
		Method:    payment.MethodCard,
	}, nil
}

func (g *stubGateway) Refund(ctx context.Context, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, reference)
	return g.refundErr
}
