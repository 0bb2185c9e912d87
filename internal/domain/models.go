package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Persisted records and backups carry money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type CatalogItem struct {
	ID            string          `json:"id"`
	DisplayName   string          `json:"english"`
	LocalizedName string          `json:"tamil"`
	UnitPrice     decimal.Decimal `json:"price"`
	ImageRef      string          `json:"image"`
}

type OrderLine struct {
	CatalogItem
	Quantity int `json:"quantity"`
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type OrderSummary struct {
	LineCount int             `json:"lineCount"`
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

type PaymentMethod string

const (
	PaymentNone PaymentMethod = "none"
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

type PaymentDetails struct {
	Method       PaymentMethod    `json:"method"`
	CashReceived *decimal.Decimal `json:"cashReceived,omitempty"`
	ChangeGiven  *decimal.Decimal `json:"changeGiven,omitempty"`
	UPIID        string           `json:"upiId,omitempty"`
}

type Bill struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"date"`
	Items          []OrderLine     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	PaymentDetails *PaymentDetails `json:"paymentDetails,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

func (b Bill) Completed() bool {
	return b.PaymentStatus == PaymentCompleted
}

type PaymentRequest struct {
	Method       PaymentMethod   `json:"method"`
	CashReceived decimal.Decimal `json:"cashReceived"`
	UPIID        string          `json:"upiId"`
}

type Settings struct {
	ShopName         string          `json:"shopName"`
	ShopAddress      string          `json:"shopAddress"`
	TaxPercentage    decimal.Decimal `json:"taxPercentage"`
	DefaultPaymentID string          `json:"defaultUpiId"`
	CurrencySymbol   string          `json:"currency"`
}

type SettingsUpdateRequest struct {
	ShopName         string           `json:"shopName"`
	ShopAddress      string           `json:"shopAddress"`
	TaxPercentage    *decimal.Decimal `json:"taxPercentage"`
	DefaultPaymentID string           `json:"defaultUpiId"`
	CurrencySymbol   string           `json:"currency,omitempty"`
}

type MenuItemCreateRequest struct {
	DisplayName   string          `json:"english"`
	LocalizedName string          `json:"tamil"`
	UnitPrice     decimal.Decimal `json:"price"`
	ImageRef      string          `json:"image,omitempty"`
}

type MenuItemPriceRequest struct {
	UnitPrice decimal.Decimal `json:"price"`
}

type Theme string

const (
	ThemeLight        Theme = "light"
	ThemeDark         Theme = "dark"
	ThemeHighContrast Theme = "high-contrast"
)

var themeCycle = []Theme{ThemeLight, ThemeDark, ThemeHighContrast}

func (t Theme) Valid() bool {
	for _, known := range themeCycle {
		if t == known {
			return true
		}
	}
	return false
}

// Next returns the theme after t in the light, dark, high-contrast cycle.
func (t Theme) Next() Theme {
	for i, known := range themeCycle {
		if t == known {
			return themeCycle[(i+1)%len(themeCycle)]
		}
	}
	return ThemeLight
}

type Snapshot struct {
	Settings Settings      `json:"settings"`
	Catalog  []CatalogItem `json:"menuItems"`
	Bills    []Bill        `json:"bills"`
	Theme    Theme         `json:"theme"`
}

type Backup struct {
	Settings   Settings      `json:"settings"`
	MenuItems  []CatalogItem `json:"menuItems"`
	Bills      []Bill        `json:"bills"`
	ExportDate time.Time     `json:"exportDate"`
}

type CartView struct {
	Lines   []OrderLine  `json:"lines"`
	Summary OrderSummary `json:"summary"`
}

type BillView struct {
	State string `json:"state"`
	Bill  *Bill  `json:"bill,omitempty"`
}

type UPIRequest struct {
	BillID string          `json:"billId"`
	URI    string          `json:"uri"`
	Payee  string          `json:"payee"`
	Amount decimal.Decimal `json:"amount"`
}

type HistoryFilter struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Method string `json:"method"`
	Search string `json:"search"`
}

type DashboardStats struct {
	TodaySales   decimal.Decimal `json:"todaySales"`
	TodayBills   int             `json:"todayBills"`
	MonthSales   decimal.Decimal `json:"monthSales"`
	MonthBills   int             `json:"monthBills"`
	AverageBill  decimal.Decimal `json:"averageBill"`
	TopItem      string          `json:"topItem"`
	TopItemCount int             `json:"topItemCount"`
}

type DailySales struct {
	Date  string          `json:"date"`
	Bills int             `json:"bills"`
	Total decimal.Decimal `json:"total"`
}

type PaymentSplit struct {
	Cash        int     `json:"cash"`
	UPI         int     `json:"upi"`
	Total       int     `json:"total"`
	CashPercent float64 `json:"cashPercent"`
	UPIPercent  float64 `json:"upiPercent"`
	Empty       bool    `json:"empty"`
}

type HistoryView struct {
	Filter       HistoryFilter `json:"filter"`
	Bills        []Bill        `json:"bills"`
	SalesByDay   []DailySales  `json:"salesByDay"`
	PaymentSplit PaymentSplit  `json:"paymentSplit"`
}

type StorageInfo struct {
	FootprintBytes int        `json:"footprintBytes"`
	FootprintKB    string     `json:"footprintKb"`
	TotalBills     int        `json:"totalBills"`
	LastBackup     *time.Time `json:"lastBackup,omitempty"`
}

type ImportResult struct {
	Settings  bool `json:"settings"`
	Menu      bool `json:"menu"`
	Bills     bool `json:"bills"`
	BillCount int  `json:"billCount"`
}
