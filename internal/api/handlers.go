package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/composer"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/pkg/models"
)

// SessionCookie carries the browser session used for visit dedup.
const SessionCookie = "tv_session"

// DefaultStatsRange is used when /stats gets neither range nor start/end.
const DefaultStatsRange = analytics.RangeLast7

const topProductsLimit = 5

func storeKey(r *http.Request) string {
	return chi.URLParam(r, "storeID")
}

// resolveStore writes a 404 and returns nil when the store is unknown.
func (h *Handler) resolveStore(w http.ResponseWriter, r *http.Request) *models.StoreConfig {
	store, err := h.stores.FindStore(storeKey(r))
	if err != nil {
		if errors.Is(err, config.ErrUnknownStore) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil
	}
	return store
}

// recordError maps analytics failures to a response.
func (h *Handler) recordError(w http.ResponseWriter, err error, meta map[string]interface{}) {
	if errors.Is(err, analytics.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable, "analytics not ready")
		return
	}
	h.logger.LogError("Recording analytics event failed", err, meta)
	writeError(w, http.StatusInternalServerError, "could not record event")
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := h.events.State()
	if state != analytics.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":    http.StatusText(status),
		"analytics": state.String(),
		"events":    h.events.Len(),
	})
}

// GetStoreConfig handles GET /api/stores/{storeID}/config.
func (h *Handler) GetStoreConfig(w http.ResponseWriter, r *http.Request) {
	store := h.resolveStore(w, r)
	if store == nil {
		return
	}
	writeJSON(w, http.StatusOK, store)
}

// sessionID returns the browser session, creating the cookie when absent.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// RecordVisit handles POST /api/stores/{storeID}/visits. Repeated visits of a
// session on the same day answer 200 without recording.
func (h *Handler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	store := h.resolveStore(w, r)
	if store == nil {
		return
	}
	session := sessionID(w, r)

	recorded, err := h.events.RecordVisitForSession(store.ID, session)
	if err != nil {
		h.recordError(w, err, map[string]interface{}{"store_id": store.ID, "type": models.EventVisit})
		return
	}
	status := http.StatusOK
	if recorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"recorded": recorded})
}

type productViewRequest struct {
	ProductID string `json:"product_id"`
}

// RecordProductView handles POST /api/stores/{storeID}/product-views.
func (h *Handler) RecordProductView(w http.ResponseWriter, r *http.Request) {
	store := h.resolveStore(w, r)
	if store == nil {
		return
	}

	var req productViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: models.ErrInvalidProductID.Error(), Field: "product_id"})
		return
	}
	if len(store.Products) > 0 {
		if _, ok := store.FindProduct(req.ProductID); !ok {
			writeError(w, http.StatusNotFound, "unknown product: "+req.ProductID)
			return
		}
	}

	event, err := h.events.RecordProductView(store.ID, req.ProductID)
	if err != nil {
		h.recordError(w, err, map[string]interface{}{"store_id": store.ID, "type": models.EventProductView})
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

type orderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	Items []orderLine `json:"items"`
	models.CheckoutForm
}

type orderResponse struct {
	Message string  `json:"message"`
	Link    string  `json:"link"`
	Total   float64 `json:"total"`
}

// CreateOrder handles POST /api/stores/{storeID}/orders. The cart is checked
// out against the store catalog, composed into the WhatsApp message and
// answered with its deep link, or redirected to it with ?redirect=1.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	store := h.resolveStore(w, r)
	if store == nil {
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart := models.NewCart()
	for i, line := range req.Items {
		product, ok := store.FindProduct(line.ProductID)
		if !ok {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{
				Error: "unknown product: " + line.ProductID,
				Field: "items[" + strconv.Itoa(i) + "]",
			})
			return
		}
		cart.Add(product, line.Quantity)
	}

	order, err := cart.Checkout(req.CheckoutForm, store)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Err.Error(), Field: verr.Field})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, link, err := h.composer.Prepare(store.WhatsAppNumber, composer.ComposeMessage(order, store.MessageTemplate()))
	if err != nil {
		h.logger.LogError("Deep link construction failed", err, map[string]interface{}{"store_id": store.ID})
		writeError(w, http.StatusInternalServerError, composer.ErrDispatchFailed.Error())
		return
	}

	// The customer still gets the link when analytics is unavailable.
	if _, err := h.events.RecordOrder(store.ID, order); err != nil {
		h.logger.LogError("Recording order failed", err, map[string]interface{}{"store_id": store.ID})
	}

	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, link, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Message: message, Link: link, Total: order.Total()})
}

type dailySeries struct {
	Days   []string  `json:"days"`
	Values []float64 `json:"values"`
}

type statsResponse struct {
	Stats       analytics.StoreStats    `json:"stats"`
	TopProducts []analytics.ProductStat `json:"top_products"`
	Daily       dailySeries             `json:"daily"`
}

// GetStats handles GET /api/stores/{storeID}/stats with either range=<preset>
// or start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	store := h.resolveStore(w, r)
	if store == nil {
		return
	}

	loc := h.events.Location()
	q := r.URL.Query()
	var (
		rng models.DateRange
		err error
	)
	switch {
	case q.Get("start") != "" || q.Get("end") != "":
		rng, err = analytics.ParseDays(q.Get("start"), q.Get("end"), loc)
	case q.Get("range") != "":
		rng, err = analytics.ParseRange(q.Get("range"), h.events.Now(), loc)
	default:
		rng, err = analytics.ParseRange(DefaultStatsRange, h.events.Now(), loc)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	top := h.events.TopProducts(store.ID, &rng, topProductsLimit)
	if top == nil {
		top = []analytics.ProductStat{}
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:       h.events.Stats(store.ID, &rng),
		TopProducts: top,
		Daily: dailySeries{
			Days:   analytics.Days(rng, loc),
			Values: h.events.DailyOrderValues(store.ID, rng),
		},
	})
}
