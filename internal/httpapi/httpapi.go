package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiffinbill/internal/domain"
	"tiffinbill/internal/qr"
	"tiffinbill/internal/service"
)

const importPath = "/api/v1/import"

type API struct {
	service       *service.Service
	qr            qr.Encoder
	logger        *zap.Logger
	allowedOrigin string
}

func New(svc *service.Service, encoder qr.Encoder, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if encoder == nil {
		encoder = qr.NewPNGEncoder()
	}
	return &API{
		service:       svc,
		qr:            encoder,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/menu", a.handleMenu)
	mux.HandleFunc("/api/v1/menu/", a.handleMenuItem)
	mux.HandleFunc("/api/v1/settings", a.handleSettings)

	mux.HandleFunc("/api/v1/cart", a.handleCart)
	mux.HandleFunc("/api/v1/cart/items", a.handleCartItems)
	mux.HandleFunc("/api/v1/cart/items/", a.handleCartItem)

	mux.HandleFunc("/api/v1/bills/generate", a.handleGenerateBill)
	mux.HandleFunc("/api/v1/bills/current", a.handleCurrentBill)
	mux.HandleFunc("/api/v1/bills/current/", a.handleCurrentBillActions)
	mux.HandleFunc("/api/v1/bills/next", a.handleNextBill)
	mux.HandleFunc("/api/v1/bills/", a.handleBillActions)

	mux.HandleFunc("/api/v1/history", a.handleHistory)
	mux.HandleFunc("/api/v1/dashboard", a.handleDashboard)

	mux.HandleFunc("/api/v1/export", a.handleExport)
	mux.HandleFunc(importPath, a.handleImport)
	mux.HandleFunc("/api/v1/storage", a.handleStorage)
	mux.HandleFunc("/api/v1/reset/today", a.handleResetToday)
	mux.HandleFunc("/api/v1/reset/all", a.handleResetAll)

	mux.HandleFunc("/api/v1/theme", a.handleTheme)
	mux.HandleFunc("/api/v1/theme/toggle", a.handleThemeToggle)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"menuItems": a.service.Menu()})
	case http.MethodPost:
		var req domain.MenuItemCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		item, err := a.service.AddMenuItem(r.Context(), req)
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusCreated, map[string]any{"menuItem": item}, err)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleMenuItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.pathTail(w, r, "/api/v1/menu/", "menu item id required")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.MenuItemPriceRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		item, err := a.service.UpdateMenuItemPrice(r.Context(), itemID, req.UnitPrice)
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusOK, map[string]any{"menuItem": item}, err)
	case http.MethodDelete:
		err := a.service.RemoveMenuItem(r.Context(), itemID)
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusOK, map[string]any{"removed": itemID}, err)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"settings": a.service.Settings()})
	case http.MethodPut:
		var req domain.SettingsUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		settings, err := a.service.SaveSettings(r.Context(), req)
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusOK, map[string]any{"settings": settings}, err)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cart": a.service.Cart()})
	case http.MethodDelete:
		if !a.requireConfirm(w, r) {
			return
		}
		cart, err := a.service.ClearCart(r.Context())
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusOK, map[string]any{"cart": cart}, err)
	default:
		a.writeMethodNotAllowed(w)
	}
}

type cartItemRequest struct {
	ItemID string `json:"itemId"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("itemId required"))
		return
	}

	cart, err := a.service.AddToCart(r.Context(), req.ItemID)
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	writeApplied(w, http.StatusOK, map[string]any{"cart": cart}, err)
}

func (a *API) handleCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.pathTail(w, r, "/api/v1/cart/items/", "menu item id required")
	if !ok {
		return
	}

	var (
		cart domain.CartView
		err  error
	)
	switch r.Method {
	case http.MethodPatch:
		var req cartQuantityRequest
		if decodeErr := decodeJSON(r, &req); decodeErr != nil {
			a.writeError(w, http.StatusBadRequest, decodeErr)
			return
		}
		cart, err = a.service.SetCartQuantity(r.Context(), itemID, req.Quantity)
	case http.MethodDelete:
		cart, err = a.service.RemoveFromCart(r.Context(), itemID)
	default:
		a.writeMethodNotAllowed(w)
		return
	}
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	writeApplied(w, http.StatusOK, map[string]any{"cart": cart}, err)
}

func (a *API) handleGenerateBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	bill, err := a.service.GenerateBill()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bill": bill})
}

func (a *API) handleCurrentBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.service.CurrentBill())
}

type upiRequest struct {
	UPIID string `json:"upiId"`
}

func (a *API) handleCurrentBillActions(w http.ResponseWriter, r *http.Request) {
	action, ok := a.pathTail(w, r, "/api/v1/bills/current/", "bill action required")
	if !ok {
		return
	}

	switch action {
	case "upi":
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		var req upiRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		payload, err := a.service.UPIPayment(req.UPIID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"upi": payload})
	case "upi.png":
		if r.Method != http.MethodGet {
			a.writeMethodNotAllowed(w)
			return
		}
		a.writeUPIImage(w, r)
	case "payment":
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		var req domain.PaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		bill, err := a.service.CompletePayment(r.Context(), req)
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusOK, map[string]any{"bill": bill}, err)
	case "cancel":
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		cart, err := a.service.CancelBill()
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
	default:
		a.writeError(w, http.StatusNotFound, fmt.Errorf("unknown bill action %q", action))
	}
}

// writeUPIImage renders the QR code of a bill opened for payment through
// POST /upi; it never moves the bill state.
func (a *API) writeUPIImage(w http.ResponseWriter, r *http.Request) {
	payload, err := a.service.PendingUPI(r.URL.Query().Get("upiId"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	size := parsePositiveLimit(r.URL.Query().Get("size"), qr.DefaultSize, 1024)
	png, err := a.qr.PNG(payload.URI, size)
	if err != nil {
		a.logger.Error("render upi qr", zap.String("bill_id", payload.BillID), zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) handleNextBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	cart, err := a.service.StartNextBill(r.Context())
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	writeApplied(w, http.StatusOK, map[string]any{"cart": cart}, err)
}

func (a *API) handleBillActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := a.pathTail(w, r, "/api/v1/bills/", "bill id required")
	if !ok {
		return
	}
	if !strings.HasSuffix(tail, "/receipt") {
		a.writeError(w, http.StatusNotFound, errors.New("unknown bill route"))
		return
	}
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	billID := strings.Trim(strings.TrimSuffix(tail, "/receipt"), "/")
	if billID == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("bill id required"))
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		rec, err := a.service.Receipt(billID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"receipt": rec})
	case "escpos":
		rec, err := a.service.Receipt(billID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(rec.EscposBase64)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	case "html":
		page, err := a.service.ReceiptHTML(billID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, page)
	default:
		a.writeError(w, http.StatusBadRequest, errors.New("format must be json, escpos or html"))
	}
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	filter := a.service.DefaultFilter()
	if query.Has("from") {
		filter.From = strings.TrimSpace(query.Get("from"))
	}
	if query.Has("to") {
		filter.To = strings.TrimSpace(query.Get("to"))
	}
	if method := strings.TrimSpace(query.Get("method")); method != "" {
		filter.Method = method
	}
	filter.Search = query.Get("search")

	for _, bound := range []string{filter.From, filter.To} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", bound); err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", bound))
			return
		}
	}

	writeJSON(w, http.StatusOK, a.service.History(filter))
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": a.service.Dashboard()})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	out, err := a.service.Export(r.Context(), r.URL.Query().Get("format"))
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	if err != nil {
		w.Header().Set("X-Storage-Error", err.Error())
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.requireConfirm(w, r) {
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		a.writeError(w, status, err)
		return
	}

	result, err := a.service.Import(r.Context(), data)
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	writeApplied(w, http.StatusOK, map[string]any{"imported": result}, err)
}

func (a *API) handleStorage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	info, err := a.service.StorageInfo(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"storage": info})
}

func (a *API) handleResetToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.requireConfirm(w, r) {
		return
	}

	removed, err := a.service.ResetToday(r.Context())
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	writeApplied(w, http.StatusOK, map[string]any{"removed": removed}, err)
}

func (a *API) handleResetAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.requireConfirm(w, r) {
		return
	}

	if err := a.service.ResetAll(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

type themeRequest struct {
	Theme domain.Theme `json:"theme"`
}

func (a *API) handleTheme(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"theme": a.service.Theme()})
	case http.MethodPut:
		var req themeRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		theme, err := a.service.SetTheme(r.Context(), req.Theme)
		if err != nil && !domain.IsStorageWrite(err) {
			a.writeServiceError(w, err)
			return
		}
		writeApplied(w, http.StatusOK, map[string]any{"theme": theme}, err)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	theme, err := a.service.ToggleTheme(r.Context())
	if err != nil && !domain.IsStorageWrite(err) {
		a.writeServiceError(w, err)
		return
	}
	writeApplied(w, http.StatusOK, map[string]any{"theme": theme}, err)
}

func (a *API) pathTail(w http.ResponseWriter, r *http.Request, prefix, missing string) (string, bool) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid path"))
		return "", false
	}
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		a.writeError(w, http.StatusBadRequest, errors.New(missing))
		return "", false
	}
	return tail, true
}

// requireConfirm guards destructive operations behind ?confirm=true.
func (a *API) requireConfirm(w http.ResponseWriter, r *http.Request) bool {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirmed {
		a.writeError(w, http.StatusBadRequest, errors.New("confirmation required: repeat with confirm=true"))
		return false
	}
	return true
}

func statusFor(err error) int {
	var short *domain.InsufficientCashError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidBackup):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateItem),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBillInProgress):
		return http.StatusConflict
	case errors.As(err, &short),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrLastItem):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dest untouched.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeApplied answers a mutation that took effect. A failed flush is
// reported beside the payload so the client can warn without rolling back.
func writeApplied(w http.ResponseWriter, status int, payload map[string]any, storageErr error) {
	if storageErr != nil {
		if status == http.StatusCreated {
			status = http.StatusOK
		}
		payload["storageError"] = storageErr.Error()
	}
	writeJSON(w, status, payload)
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
