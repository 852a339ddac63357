package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/api"
	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/service"
	"storefront/internal/storefront"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bob = models.User{ID: "user-bob", Role: models.RoleCustomer}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, Token: "tok", Retries: 2})
	require.NoError(t, err)
	c.backoff = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestBrowseSendsCanonicalQuery(t *testing.T) {
	var gotQuery, gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{
			"items":     []models.Product{{ID: "p1", Title: "Forum Theme"}},
			"total":     11,
			"page":      2,
			"page_size": 5,
		})
	}))

	q := catalog.Query{Filter: catalog.Filter{}.WithPlatform("XenForo"), Sort: catalog.SortNewest, Page: 2}
	res, err := c.Browse(context.Background(), q, 5)
	require.NoError(t, err)

	assert.Equal(t, "platform=XenForo&sort=newest&page=2&page_size=5", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 11, res.Total)
	assert.Equal(t, 3, res.PageCount())
	require.Len(t, res.Items, 1)
	assert.Equal(t, "p1", res.Items[0].ID)
}

func TestErrorResponsesMapToKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		kind   error
	}{
		{"validation", http.StatusBadRequest, map[string]any{"error": "validation failure: page must be at least 1"}, apperr.ErrValidation},
		{"auth", http.StatusUnauthorized, map[string]any{"error": "Please sign in to continue"}, apperr.ErrAuthRequired},
		{"forbidden", http.StatusForbidden, map[string]any{"error": "no"}, apperr.ErrForbidden},
		{"not found", http.StatusNotFound, map[string]any{"error": "Not found"}, apperr.ErrNotFound},
		{"unavailable", http.StatusServiceUnavailable, map[string]any{"error": "retry", "retryable": true}, apperr.ErrDataUnavailable},
		{"declined", http.StatusPaymentRequired, map[string]any{"error": "Your payment was declined"}, payment.ErrDeclined},
		{"checkout", http.StatusInternalServerError, map[string]any{"error": "contact support", "payment_reference": "sim_1", "refunded": true}, apperr.ErrCheckout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			c.retries = 0

			_, err := c.Checkout(context.Background(), bob, "")
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCheckoutErrorKeepsPaymentReference(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "x", "payment_reference": "sim_7", "refunded": false})
	}))

	_, err := c.Checkout(context.Background(), bob, "key-1")
	var ce *apperr.CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "sim_7", ce.PaymentReference)
	assert.False(t, ce.Refunded)
	assert.False(t, apperr.Retryable(err))
}

func TestGetsAreRetriedWritesAreNot(t *testing.T) {
	var gets, posts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "down"})
			return
		}
		if gets.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []models.CartItem{{ProductID: "p1", Quantity: 2}}})
	}))
	ctx := context.Background()

	items, err := c.Cart().Items(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 3, gets.Load())

	_, err = c.Cart().Add(ctx, bob, "p1", 1)
	assert.ErrorIs(t, err, apperr.ErrDataUnavailable)
	assert.EqualValues(t, 1, posts.Load())
}

func TestCompressedResponses(t *testing.T) {
	payload := []byte(`{"items":[{"id":"n1","label":"Plugins","href":"/?category=Plugins"}]}`)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write(payload)
	require.NoError(t, zw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	require.NoError(t, bw.Close())

	for encoding, body := range map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()} {
		t.Run(encoding, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), encoding)
				w.Header().Set("Content-Encoding", encoding)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(body)
			}))

			items, err := c.Navigation(context.Background())
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "Plugins", items[0].Label)
		})
	}
}

func TestCartUpdateToZeroReturnsNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/cart/p1", r.URL.Path)
		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 0, body["quantity"])
		w.WriteHeader(http.StatusNoContent)
	}))

	item, err := c.Cart().Update(context.Background(), bob, "p1", 0)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestSignedOutCallsNeverReachServer(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	ctx := context.Background()

	_, err := c.Cart().Add(ctx, models.User{}, "p1", 1)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	_, err = c.Wishlist().Items(ctx, models.User{})
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	_, err = c.Checkout(ctx, models.User{}, "")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	assert.Zero(t, hits.Load())
}

func TestClientDrivesStorefrontStores(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/products", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []models.Product{}, "total": 0, "page": 1, "page_size": 10})
	})
	mux.HandleFunc("/api/v1/wishlist", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.WishlistItem{ID: "w1", UserID: bob.ID, ProductID: "p1"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	ctrl := storefront.NewController(c, c.Codec(), storefront.ControllerOptions{})
	snap, err := ctrl.SetSearch(ctx, "nothing matches")
	require.NoError(t, err)
	assert.Equal(t, storefront.StateEmpty, snap.State)

	session := &storefront.Session{}
	session.SignIn(bob)
	wishlist := storefront.NewWishlistStore(c.Wishlist(), session)
	_, err = wishlist.Add(ctx, models.Product{ID: "p1", Title: "Plugin"})
	require.NoError(t, err)
	assert.True(t, wishlist.Contains("p1"))
}

func TestUpdateProfileSendsEditableFields(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/me", r.URL.Path)
		var in service.ProfileInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(w, http.StatusOK, models.Profile{ID: "user-bob", Role: models.RoleCustomer, FirstName: in.FirstName, AvatarURL: in.AvatarURL})
	}))

	p, err := c.UpdateProfile(context.Background(), service.ProfileInput{FirstName: "Bob", AvatarURL: "https://cdn.test/bob.png"})
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.FirstName)
	assert.Equal(t, "https://cdn.test/bob.png", p.AvatarURL)
}

// browseOnly serves the catalog listing and nothing else.
type browseOnly struct {
	api.CatalogService
}

func (browseOnly) Codec() catalog.Codec { return catalog.NewCodec(catalog.DefaultPriceCeiling) }

func (browseOnly) Browse(ctx context.Context, q catalog.Query, pageSize int) (catalog.Result, error) {
	return catalog.Result{Items: []models.Product{{ID: "p-1", Title: "Forum Theme"}}, Total: 1, Page: q.Page, PageSize: pageSize}, nil
}

// encodingRecorder notes the Content-Encoding of every response.
type encodingRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (e *encodingRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err == nil {
		e.mu.Lock()
		e.seen = append(e.seen, resp.Header.Get("Content-Encoding"))
		e.mu.Unlock()
	}
	return resp, err
}

func TestBrowseDecodesServerBrotli(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api.NewHandler(api.Services{Catalog: browseOnly{}}, api.Options{}).SetupRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	rec := &encodingRecorder{}
	c, err := New(Options{BaseURL: srv.URL, Transport: rec})
	require.NoError(t, err)

	res, err := c.Browse(context.Background(), catalog.Query{Search: "forum"}, 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Forum Theme", res.Items[0].Title)
	assert.Equal(t, []string{"br"}, rec.seen)
}
