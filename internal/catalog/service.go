package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	sourceMedusa        = "medusa-backend"
	defaultStockedCount = 999
)

type medusaAPI interface {
	DefaultRegion(ctx context.Context) (*Region, error)
	ListProducts(ctx context.Context, regionID string) ([]medusaProduct, error)
	ProductByHandle(ctx context.Context, regionID, handle string) (*medusaProduct, error)
	ProductByID(ctx context.Context, regionID, id string) (*medusaProduct, error)
}

type stockInitializer interface {
	Initialize(ctx context.Context, records []inventory.Record) (int64, error)
}

// Listing is the response of a catalog fetch.
type Listing struct {
	Products []Product `json:"products"`
	Source   string    `json:"source"`
	Count    int       `json:"count"`
}

// ResolvedVariant is what the cart stores for a line: the catalog's own
// title and price, never the shopper's.
type ResolvedVariant struct {
	ProductID string
	VariantID string
	Title     string
	Price     types.Money
}

// Service fetches the catalog and makes sure every variant is tracked by
// the inventory before a shopper can add it to a cart.
type Service interface {
	ListProducts(ctx context.Context) (*Listing, error)
	GetByHandle(ctx context.Context, handle string) (*Product, error)
	ResolveVariant(ctx context.Context, productID, variantID string) (*ResolvedVariant, error)
}

type service struct {
	client       medusaAPI
	inventory    stockInitializer
	logg         *logger.Logger
	defaultStock int
}

type ServiceParams struct {
	Client       medusaAPI
	Inventory    stockInitializer
	Logger       *logger.Logger
	DefaultStock int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("medusa client required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	stock := params.DefaultStock
	if stock <= 0 {
		stock = defaultStockedCount
	}
	return &service{
		client:       params.Client,
		inventory:    params.Inventory,
		logg:         params.Logger,
		defaultStock: stock,
	}, nil
}

func (s *service) ListProducts(ctx context.Context) (*Listing, error) {
	region, err := s.client.DefaultRegion(ctx)
	if err != nil {
		return nil, upstreamError(err, "fetch regions")
	}
	regionID, currency := regionParams(region)

	raw, err := s.client.ListProducts(ctx, regionID)
	if err != nil {
		return nil, upstreamError(err, "fetch products")
	}

	products := make([]Product, 0, len(raw))
	var skipped error
	for _, rp := range raw {
		p, err := normalizeProduct(rp, currency)
		if err != nil {
			skipped = multierr.Append(skipped, err)
			continue
		}
		products = append(products, p)
	}
	if skipped != nil {
		errs := multierr.Errors(skipped)
		logCtx := s.logg.WithField(ctx, "skipped", len(errs))
		s.logg.Warn(s.logg.WithField(logCtx, "error", skipped.Error()), "skipped malformed catalog products")
	}

	if err := s.track(ctx, products); err != nil {
		return nil, err
	}
	return &Listing{Products: products, Source: sourceMedusa, Count: len(products)}, nil
}

func (s *service) GetByHandle(ctx context.Context, handle string) (*Product, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product handle is required")
	}
	region, err := s.client.DefaultRegion(ctx)
	if err != nil {
		return nil, upstreamError(err, "fetch regions")
	}
	regionID, currency := regionParams(region)

	raw, err := s.client.ProductByHandle(ctx, regionID, handle)
	if err != nil {
		return nil, upstreamError(err, "fetch product")
	}
	if raw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	p, err := normalizeProduct(*raw, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog product is malformed")
	}
	if err := s.track(ctx, []Product{p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *service) ResolveVariant(ctx context.Context, productID, variantID string) (*ResolvedVariant, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" || variantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id and variant_id are required")
	}
	region, err := s.client.DefaultRegion(ctx)
	if err != nil {
		return nil, upstreamError(err, "fetch regions")
	}
	regionID, currency := regionParams(region)

	raw, err := s.client.ProductByID(ctx, regionID, productID)
	if err != nil {
		return nil, upstreamError(err, "fetch product")
	}
	if raw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID})
	}
	p, err := normalizeProduct(*raw, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog product is malformed")
	}

	idx := slices.IndexFunc(p.Variants, func(v Variant) bool { return v.ID == variantID })
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
			WithDetails(map[string]any{"product_id": productID, "variant_id": variantID})
	}
	v := p.Variants[idx]
	if v.Price.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant has no price").
			WithDetails(map[string]any{"variant_id": variantID})
	}
	if err := s.track(ctx, []Product{p}); err != nil {
		return nil, err
	}

	title := p.Title
	if v.Title != "" && v.Title != p.Title {
		title = p.Title + " / " + v.Title
	}
	return &ResolvedVariant{ProductID: p.ID, VariantID: v.ID, Title: title, Price: v.Price}, nil
}

func (s *service) track(ctx context.Context, products []Product) error {
	var records []inventory.Record
	for _, p := range products {
		for _, v := range p.Variants {
			stocked := v.InventoryQuantity
			if stocked <= 0 {
				stocked = s.defaultStock
			}
			records = append(records, inventory.Record{
				VariantID: v.ID,
				ProductID: p.ID,
				SKU:       v.SKU,
				Stocked:   stocked,
			})
		}
	}
	if len(records) == 0 {
		return nil
	}
	created, err := s.inventory.Initialize(ctx, records)
	if err != nil {
		s.logg.Error(ctx, "failed to initialize inventory", err)
		return err
	}
	if created > 0 {
		s.logg.Info(s.logg.WithField(ctx, "created", created), "inventory records initialized")
	}
	return nil
}

func regionParams(region *Region) (string, string) {
	if region == nil {
		return "", types.DefaultCurrencyCode
	}
	currency := region.CurrencyCode
	if currency == "" {
		currency = types.DefaultCurrencyCode
	}
	return region.ID, currency
}

func upstreamError(err error, action string) error {
	if errors.Is(err, ErrNotConfigured) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog backend not configured")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action).
		WithDetails(map[string]any{"upstream": "medusa"})
}
