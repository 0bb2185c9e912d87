package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiffinbill/internal/billing"
	"tiffinbill/internal/domain"
	"tiffinbill/internal/history"
	"tiffinbill/internal/order"
	"tiffinbill/internal/persistence"
	"tiffinbill/internal/receipt"
)

// Service owns the counter state: catalog, settings, bill log, the open
// order and the bill being paid. Every method holds one lock, so callers on
// concurrent goroutines observe a single sequence of operations.
//
// Mutations apply in memory first and then flush. When only the flush fails
// the method returns its result together with a *domain.StorageWriteError.
type Service struct {
	mu      sync.Mutex
	gateway *persistence.Gateway
	printer *receipt.Printer
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
	width   int

	snap domain.Snapshot
	cart *order.Cart
	bill *billing.Lifecycle
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithReceiptWidth(width int) Option {
	return func(s *Service) {
		s.width = width
	}
}

func New(ctx context.Context, gateway *persistence.Gateway, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		gateway: gateway,
		logger:  logger,
		loc:     time.Local,
		now:     time.Now,
		width:   32,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.printer = receipt.NewPrinter(s.width, s.loc)

	snap, report := gateway.Load(ctx)
	if len(report.Defaulted) > 0 {
		logger.Info("state loaded with defaults", zap.Strings("keys", report.Defaulted))
	}
	s.snap = snap
	s.cart = order.NewCart(gateway.LoadCart(ctx))
	s.bill = billing.NewLifecycle()
	logger.Info("state loaded",
		zap.Int("menu_items", len(snap.Catalog)),
		zap.Int("bills", len(snap.Bills)),
		zap.Int("cart_lines", s.cart.Len()),
	)
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) flush(ctx context.Context) error {
	if err := s.gateway.Save(ctx, s.snap); err != nil {
		s.logger.Warn("flush state", zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) flushCart(ctx context.Context) error {
	if err := s.gateway.SaveCart(ctx, s.cart.Lines()); err != nil {
		s.logger.Warn("flush cart", zap.Error(err))
		return err
	}
	return nil
}

// Catalog

func (s *Service) Menu() []domain.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.snap.Catalog)
}

func (s *Service) AddMenuItem(ctx context.Context, req domain.MenuItemCreateRequest) (domain.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := domain.NewCatalogItem(req)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if s.catalogIndex(item.ID) >= 0 {
		return domain.CatalogItem{}, fmt.Errorf("%w: %s", domain.ErrDuplicateItem, item.ID)
	}

	s.snap.Catalog = append(s.snap.Catalog, item)
	s.logger.Info("menu item added", zap.String("item_id", item.ID))
	return item, s.flush(ctx)
}

func (s *Service) UpdateMenuItemPrice(ctx context.Context, itemID string, price decimal.Decimal) (domain.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !price.IsPositive() {
		return domain.CatalogItem{}, fmt.Errorf("%w: price must be greater than zero", domain.ErrInvalidInput)
	}
	idx := s.catalogIndex(itemID)
	if idx < 0 {
		return domain.CatalogItem{}, fmt.Errorf("%w: menu item %s", domain.ErrNotFound, itemID)
	}

	s.snap.Catalog[idx].UnitPrice = price
	item := s.snap.Catalog[idx]
	s.logger.Info("menu price updated", zap.String("item_id", item.ID), zap.String("price", price.String()))
	return item, s.flush(ctx)
}

func (s *Service) RemoveMenuItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.catalogIndex(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: menu item %s", domain.ErrNotFound, itemID)
	}
	if len(s.snap.Catalog) <= 1 {
		return domain.ErrLastItem
	}

	s.snap.Catalog = slices.Delete(s.snap.Catalog, idx, idx+1)
	s.logger.Info("menu item removed", zap.String("item_id", itemID))
	return s.flush(ctx)
}

func (s *Service) catalogIndex(itemID string) int {
	itemID = strings.TrimSpace(itemID)
	return slices.IndexFunc(s.snap.Catalog, func(item domain.CatalogItem) bool {
		return item.ID == itemID
	})
}

// Settings

func (s *Service) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Settings
}

// SaveSettings replaces the shop settings. Omitted tax, payment id and
// currency keep their current values.
func (s *Service) SaveSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Settings
	next.ShopName = strings.TrimSpace(req.ShopName)
	next.ShopAddress = strings.TrimSpace(req.ShopAddress)
	if req.TaxPercentage != nil {
		next.TaxPercentage = *req.TaxPercentage
	}
	if id := strings.TrimSpace(req.DefaultPaymentID); id != "" {
		next.DefaultPaymentID = id
	}
	if currency := strings.TrimSpace(req.CurrencySymbol); currency != "" {
		next.CurrencySymbol = currency
	}
	if err := next.Validate(); err != nil {
		return domain.Settings{}, err
	}

	s.snap.Settings = next
	s.logger.Info("settings saved", zap.String("tax", next.TaxPercentage.String()))
	return next, s.flush(ctx)
}

// Order

func (s *Service) Cart() domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartView()
}

func (s *Service) AddToCart(ctx context.Context, itemID string) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.catalogIndex(itemID)
	if idx < 0 {
		return domain.CartView{}, fmt.Errorf("%w: menu item %s", domain.ErrNotFound, itemID)
	}
	s.cart.Add(s.snap.Catalog[idx])
	return s.cartView(), s.flushCart(ctx)
}

func (s *Service) SetCartQuantity(ctx context.Context, itemID string, quantity int) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.SetQuantity(strings.TrimSpace(itemID), quantity)
	return s.cartView(), s.flushCart(ctx)
}

func (s *Service) RemoveFromCart(ctx context.Context, itemID string) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Remove(strings.TrimSpace(itemID))
	return s.cartView(), s.flushCart(ctx)
}

func (s *Service) ClearCart(ctx context.Context) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Clear()
	return s.cartView(), s.flushCart(ctx)
}

func (s *Service) cartView() domain.CartView {
	return domain.CartView{
		Lines:   s.cart.Lines(),
		Summary: s.cart.Summary(s.snap.Settings.TaxPercentage),
	}
}

// Bills

func (s *Service) GenerateBill() (domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.bill.Generate(s.cart.Lines(), s.snap.Settings, s.snap.Bills, s.clock())
	if err != nil {
		return domain.Bill{}, err
	}
	s.logger.Info("bill generated", zap.String("bill_id", bill.ID), zap.String("total", bill.Total.StringFixed(2)))
	return bill, nil
}

func (s *Service) CurrentBill() domain.BillView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.billView()
}

func (s *Service) billView() domain.BillView {
	view := domain.BillView{State: string(s.bill.State())}
	if bill, ok := s.bill.Current(); ok {
		view.Bill = &bill
	}
	return view
}

// UPIPayment opens the payment view for the pending bill and returns the
// request to encode as a QR code. An empty upiID uses the shop default.
func (s *Service) UPIPayment(upiID string) (domain.UPIRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bill.AwaitPayment(); err != nil {
		return domain.UPIRequest{}, err
	}
	bill, _ := s.bill.Current()
	return billing.UPIPayload(s.snap.Settings, bill, upiID), nil
}

// PendingUPI returns the payment request of a bill already awaiting payment
// without changing its state.
func (s *Service) PendingUPI(upiID string) (domain.UPIRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.bill.State(); state != billing.StateAwaitingPayment {
		return domain.UPIRequest{}, fmt.Errorf("%w: no bill is awaiting payment (state %s)", domain.ErrInvalidTransition, state)
	}
	bill, _ := s.bill.Current()
	return billing.UPIPayload(s.snap.Settings, bill, upiID), nil
}

// CompletePayment settles the pending bill and puts it at the head of the log.
func (s *Service) CompletePayment(ctx context.Context, req domain.PaymentRequest) (domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.bill.RecordPayment(req, s.snap.Settings, s.clock())
	if err != nil {
		return domain.Bill{}, err
	}

	s.snap.Bills = append([]domain.Bill{bill}, s.snap.Bills...)
	s.logger.Info("bill completed",
		zap.String("bill_id", bill.ID),
		zap.String("method", string(bill.PaymentMethod)),
		zap.String("total", bill.Total.StringFixed(2)),
	)
	return bill, s.flush(ctx)
}

// CancelBill drops the pending bill and keeps the order for editing.
func (s *Service) CancelBill() (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bill.CancelToEdit(); err != nil {
		return domain.CartView{}, err
	}
	return s.cartView(), nil
}

func (s *Service) StartNextBill(ctx context.Context) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bill.ResetForNext(); err != nil {
		return domain.CartView{}, err
	}
	s.cart.Clear()
	return s.cartView(), s.flushCart(ctx)
}

func (s *Service) Receipt(billID string) (receipt.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.findBill(billID)
	if err != nil {
		return receipt.Receipt{}, err
	}
	return s.printer.Build(bill, s.snap.Settings)
}

func (s *Service) ReceiptHTML(billID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.findBill(billID)
	if err != nil {
		return "", err
	}
	return s.printer.HTML(bill, s.snap.Settings)
}

func (s *Service) findBill(billID string) (domain.Bill, error) {
	billID = strings.TrimSpace(billID)
	for _, bill := range s.snap.Bills {
		if bill.ID == billID {
			return bill, nil
		}
	}
	if current, ok := s.bill.Current(); ok && current.ID == billID {
		return current, nil
	}
	return domain.Bill{}, fmt.Errorf("%w: bill %s", domain.ErrNotFound, billID)
}

// History

func (s *Service) DefaultFilter() domain.HistoryFilter {
	return history.DefaultFilter(s.now(), s.loc)
}

func (s *Service) History(filter domain.HistoryFilter) domain.HistoryView {
	s.mu.Lock()
	defer s.mu.Unlock()

	bills := history.Apply(s.snap.Bills, filter, s.loc)
	return domain.HistoryView{
		Filter:       filter,
		Bills:        bills,
		SalesByDay:   history.SalesByDay(bills, s.loc),
		PaymentSplit: history.PaymentSplit(bills),
	}
}

func (s *Service) Dashboard() domain.DashboardStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return history.Dashboard(s.snap.Bills, s.clock(), s.loc)
}

// Data management

func (s *Service) Export(ctx context.Context, format string) (persistence.Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateway.Export(ctx, s.snap, format, s.clock())
}

// Import merges the sections present in a backup file over the current
// state. Nothing changes when the file is rejected.
func (s *Service) Import(ctx context.Context, data []byte) (domain.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireNoPendingBill(); err != nil {
		return domain.ImportResult{}, err
	}
	backup, err := persistence.ParseBackup(data)
	if err != nil {
		return domain.ImportResult{}, err
	}
	s.snap = backup.Apply(s.snap)

	result := domain.ImportResult{
		Settings:  backup.Settings != nil,
		Menu:      backup.HasCatalog(),
		Bills:     backup.HasBills(),
		BillCount: len(s.snap.Bills),
	}
	s.logger.Info("backup imported",
		zap.Bool("settings", result.Settings),
		zap.Bool("menu", result.Menu),
		zap.Bool("bills", result.Bills),
	)
	return result, s.flush(ctx)
}

func (s *Service) StorageInfo(ctx context.Context) (domain.StorageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	footprint, err := s.gateway.Footprint(ctx)
	if err != nil {
		return domain.StorageInfo{}, err
	}
	lastBackup, err := s.gateway.LastBackup(ctx)
	if err != nil {
		return domain.StorageInfo{}, err
	}
	return domain.StorageInfo{
		FootprintBytes: footprint,
		FootprintKB:    persistence.FormatKB(footprint),
		TotalBills:     len(s.snap.Bills),
		LastBackup:     lastBackup,
	}, nil
}

// ResetToday deletes the bills created today and reports how many went.
func (s *Service) ResetToday(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireNoPendingBill(); err != nil {
		return 0, err
	}
	bills, removed := history.RemoveDay(s.snap.Bills, history.Day(s.clock(), s.loc), s.loc)
	s.snap.Bills = bills
	s.logger.Info("today's bills reset", zap.Int("removed", removed))
	return removed, s.flush(ctx)
}

// requireNoPendingBill refuses log rewrites while a generated bill holds an
// id numbered against the current log.
func (s *Service) requireNoPendingBill() error {
	switch state := s.bill.State(); state {
	case billing.StateGenerated, billing.StateAwaitingPayment:
		return fmt.Errorf("%w: settle or cancel the current bill first (state %s)", domain.ErrBillInProgress, state)
	}
	return nil
}

// ResetAll wipes every stored record and returns to the default state.
func (s *Service) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gateway.Wipe(ctx); err != nil {
		return fmt.Errorf("wipe storage: %w", err)
	}
	s.snap = domain.Snapshot{
		Settings: domain.DefaultSettings(),
		Catalog:  domain.DefaultCatalog(),
		Bills:    []domain.Bill{},
		Theme:    domain.ThemeLight,
	}
	s.cart.Clear()
	s.bill = billing.NewLifecycle()
	s.logger.Warn("all data reset")
	return nil
}

// Theme

func (s *Service) Theme() domain.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Theme
}

func (s *Service) ToggleTheme(ctx context.Context) (domain.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Theme = s.snap.Theme.Next()
	return s.snap.Theme, s.gateway.SaveTheme(ctx, s.snap.Theme)
}

func (s *Service) SetTheme(ctx context.Context, theme domain.Theme) (domain.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !theme.Valid() {
		return "", fmt.Errorf("%w: unknown theme %q", domain.ErrInvalidInput, theme)
	}
	s.snap.Theme = theme
	return s.snap.Theme, s.gateway.SaveTheme(ctx, s.snap.Theme)
}
