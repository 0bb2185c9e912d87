package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tiffinbill/internal/ident"
)

const PlaceholderImage = "https://images.unsplash.com/photo-1565299624946-b28f40a0ae38?w=400&h=300&fit=crop"

func DefaultSettings() Settings {
	return Settings{
		ShopName:         "Tiffin Shop",
		ShopAddress:      "Chennai, Tamil Nadu",
		TaxPercentage:    decimal.NewFromInt(5),
		DefaultPaymentID: "shop@upi",
		CurrencySymbol:   "₹",
	}
}

func DefaultCatalog() []CatalogItem {
	return []CatalogItem{
		{ID: "idly", DisplayName: "Idly", LocalizedName: "இட்லி", UnitPrice: decimal.NewFromInt(30), ImageRef: "https://images.unsplash.com/photo-1631452180519-c014fe946bc7?ixlib=rb-4.0.3&auto=format&fit=crop&w=400&q=80"},
		{ID: "dosa", DisplayName: "Dosa", LocalizedName: "தோசை", UnitPrice: decimal.NewFromInt(40), ImageRef: "asset/dosa.jpg"},
		{ID: "masala-dosa", DisplayName: "Masala Dosa", LocalizedName: "மசாலா தோசை", UnitPrice: decimal.NewFromInt(60), ImageRef: "https://images.unsplash.com/photo-1668236543090-82eba5ee5976?ixlib=rb-4.0.3&auto=format&fit=crop&w=400&q=80"},
		{ID: "pongal", DisplayName: "Pongal", LocalizedName: "பொங்கல்", UnitPrice: decimal.NewFromInt(40), ImageRef: "asset/pongal.jpg"},
		{ID: "poori", DisplayName: "Poori", LocalizedName: "பூரி", UnitPrice: decimal.NewFromInt(50), ImageRef: "asset/poori.jpg"},
		{ID: "vada", DisplayName: "Vada", LocalizedName: "வடை", UnitPrice: decimal.NewFromInt(25), ImageRef: "https://images.unsplash.com/photo-1565557623262-b51c2513a641?ixlib=rb-4.0.3&auto=format&fit=crop&w=400&q=80"},
		{ID: "chapathi", DisplayName: "Chapathi", LocalizedName: "சப்பாத்தி", UnitPrice: decimal.NewFromInt(35), ImageRef: "asset/chappathi.jpg"},
	}
}

// NewCatalogItem validates the request and derives the item id from its display name.
func NewCatalogItem(req MenuItemCreateRequest) (CatalogItem, error) {
	item := CatalogItem{
		DisplayName:   strings.TrimSpace(req.DisplayName),
		LocalizedName: strings.TrimSpace(req.LocalizedName),
		UnitPrice:     req.UnitPrice,
		ImageRef:      strings.TrimSpace(req.ImageRef),
	}
	item.ID = ident.Slug(item.DisplayName)
	if item.ImageRef == "" {
		item.ImageRef = PlaceholderImage
	}
	if err := item.Validate(); err != nil {
		return CatalogItem{}, err
	}
	return item, nil
}

func (c CatalogItem) Validate() error {
	if c.ID == "" || c.DisplayName == "" || c.LocalizedName == "" {
		return fmt.Errorf("%w: item name and localized name are required", ErrInvalidInput)
	}
	if !c.UnitPrice.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidInput)
	}
	return nil
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.ShopName) == "" || strings.TrimSpace(s.ShopAddress) == "" {
		return fmt.Errorf("%w: shop name and address are required", ErrInvalidInput)
	}
	if s.TaxPercentage.IsNegative() {
		return fmt.Errorf("%w: tax percentage cannot be negative", ErrInvalidInput)
	}
	return nil
}
