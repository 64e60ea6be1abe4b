package ports

import (
	"context"

	"order-engine/internal/features/inventory/domain"
)

// StockClass categorizes a product for reorder-point tuning.
type StockClass string

const (
	// StockClassStandard applies the unscaled reorder point.
	StockClassStandard StockClass = "STANDARD"
	// StockClassSeasonal raises the reorder point during demand seasons.
	StockClassSeasonal StockClass = "SEASONAL"
	// StockClassHighDemand raises the reorder point for fast movers.
	StockClassHighDemand StockClass = "HIGH_DEMAND"
	// StockClassPerishable lowers the reorder point for goods that expire.
	StockClassPerishable StockClass = "PERISHABLE"
)

// StockClassifier decides the stock class of a product. This is a Secondary
// Port (Driven Port); callers plug in catalog-aware implementations.
type StockClassifier interface {
	Classify(productID string) StockClass
}

// StockClassifierFunc adapts a plain function to the StockClassifier interface.
type StockClassifierFunc func(productID string) StockClass

// Classify implements StockClassifier.
func (f StockClassifierFunc) Classify(productID string) StockClass {
	return f(productID)
}

// NotificationSink receives stock alerts emitted by the ledger. Implementations
// are external collaborators (email, paging, messaging) and out of scope here.
type NotificationSink interface {
	// LowStock is called when a record crosses its reorder point.
	LowStock(ctx context.Context, key domain.Key, available int)
	// RestockEscalated is called after repeated low-stock triggers without resolution.
	RestockEscalated(ctx context.Context, key domain.Key, attempts int)
}
