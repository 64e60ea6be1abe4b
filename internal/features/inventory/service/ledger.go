package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"order-engine/internal/features/inventory/domain"
	"order-engine/internal/features/inventory/ports"
)

// Config holds the tunable policy for the ledger.
type Config struct {
	// EscalationThreshold is the consecutive low-stock trigger count at which
	// restock notifications escalate.
	EscalationThreshold int
	// ClassMultipliers scales the reorder point per stock class. Classes with
	// no entry use a multiplier of 1.
	ClassMultipliers map[ports.StockClass]float64
}

// slot pairs a record with its own mutex so operations on distinct keys
// proceed in parallel while same-key operations serialize.
type slot struct {
	mu  sync.Mutex
	rec *domain.Record
}

// Ledger tracks available and reserved stock per inventory key. Reserve and
// release are check-and-act atomic per key.
type Ledger struct {
	cfg        Config
	classifier ports.StockClassifier
	sink       ports.NotificationSink
	log        *zap.Logger

	mu    sync.Mutex
	slots map[domain.Key]*slot
}

// NewLedger creates a Ledger. The classifier and sink may be nil, in which
// case all products are treated as standard and alerts are dropped.
func NewLedger(cfg Config, classifier ports.StockClassifier, sink ports.NotificationSink, log *zap.Logger) *Ledger {
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		cfg:        cfg,
		classifier: classifier,
		sink:       sink,
		log:        log,
		slots:      make(map[domain.Key]*slot),
	}
}

// Register creates or replaces the record for a key.
func (l *Ledger) Register(key domain.Key, available, reorderPoint, maxStockLevel int) error {
	if available < 0 {
		return domain.ErrNegativeQuantity
	}
	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec = &domain.Record{
		Key:           key,
		Available:     available,
		ReorderPoint:  reorderPoint,
		MaxStockLevel: maxStockLevel,
	}
	return nil
}

// Reserve atomically claims qty units of the keyed stock. A shortfall is an
// expected outcome reported through the result, not an error; only invalid
// input fails.
func (l *Ledger) Reserve(ctx context.Context, key domain.Key, qty int) (domain.ReservationResult, error) {
	if qty <= 0 {
		return domain.ReservationResult{}, fmt.Errorf("reserve %s: %w", key, domain.ErrInvalidQuantity)
	}

	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil || !s.rec.CanReserve(qty) {
		available := 0
		if s.rec != nil {
			available = s.rec.Available
		}
		return domain.ShortOf(map[string]int{key.ProductID: qty - available}), nil
	}

	s.rec.ApplyReserve(qty)
	l.checkLowStockLocked(ctx, s.rec)
	return domain.Reserved(), nil
}

// ReserveAll claims every requested quantity or none of them. On any shortfall
// the quantities already claimed are released and the combined per-product
// shortfall is returned.
func (l *Ledger) ReserveAll(ctx context.Context, requests []domain.Reservation) (domain.ReservationResult, error) {
	for _, req := range requests {
		if req.Quantity <= 0 {
			return domain.ReservationResult{}, fmt.Errorf("reserve %s: %w", req.Key, domain.ErrInvalidQuantity)
		}
	}

	unavailable := make(map[string]int)
	claimed := make([]domain.Reservation, 0, len(requests))
	for _, req := range requests {
		res, err := l.Reserve(ctx, req.Key, req.Quantity)
		if err != nil {
			return domain.ReservationResult{}, err
		}
		if !res.Successful {
			for product, short := range res.Unavailable {
				unavailable[product] += short
			}
			continue
		}
		claimed = append(claimed, req)
	}

	if len(unavailable) > 0 {
		for _, req := range claimed {
			l.Release(ctx, req.Key, req.Quantity)
		}
		return domain.ShortOf(unavailable), nil
	}
	return domain.Reserved(), nil
}

// Release returns qty units from reserved back to available. If fewer units
// are reserved than requested, everything still reserved is released and the
// record is flagged for operator review; the call never fails on that
// condition, so releasing twice is safe.
func (l *Ledger) Release(ctx context.Context, key domain.Key, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release %s: %w", key, domain.ErrInvalidQuantity)
	}

	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		l.log.Warn("release against unknown inventory key",
			zap.String("key", key.String()),
			zap.Int("quantity", qty),
		)
		return nil
	}

	released, inconsistent := s.rec.ApplyRelease(qty)
	if inconsistent {
		l.log.Warn("inventory inconsistency: released less than requested",
			zap.String("key", key.String()),
			zap.Int("requested", qty),
			zap.Int("released", released),
		)
	}
	l.resetRestockIfRecoveredLocked(s.rec)
	return nil
}

// UpdateAvailable administratively sets the available quantity. Negative
// values are rejected; values that would push the record over its max stock
// level are clamped down and logged.
func (l *Ledger) UpdateAvailable(ctx context.Context, key domain.Key, qty int) error {
	if qty < 0 {
		return fmt.Errorf("update %s: %w", key, domain.ErrNegativeQuantity)
	}

	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		s.rec = &domain.Record{Key: key}
	}

	s.rec.Available = qty
	if s.rec.OverCapacity() {
		clamped := s.rec.MaxStockLevel - s.rec.Reserved
		if clamped < 0 {
			clamped = 0
		}
		l.log.Warn("available stock clamped to max stock level",
			zap.String("key", key.String()),
			zap.Int("requested", qty),
			zap.Int("clamped", clamped),
		)
		s.rec.Available = clamped
	}
	l.resetRestockIfRecoveredLocked(s.rec)
	return nil
}

// IsLowStock reports whether available stock sits at or below the reorder
// point, scaled by the product's stock-class multiplier.
func (l *Ledger) IsLowStock(key domain.Key) bool {
	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return false
	}
	return s.rec.IsLowStock(l.multiplierFor(key.ProductID))
}

// CurrentAvailable returns the available quantity for a key, zero if unknown.
func (l *Ledger) CurrentAvailable(key domain.Key) int {
	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return 0
	}
	return s.rec.Available
}

// CurrentReserved returns the reserved quantity for a key, zero if unknown.
func (l *Ledger) CurrentReserved(key domain.Key) int {
	s := l.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return 0
	}
	return s.rec.Reserved
}

// Exists reports whether the bare product key has a record.
func (l *Ledger) Exists(productID string) bool {
	s := l.slot(domain.ProductKey(productID))
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

// CurrentStock returns the available quantity for a product and optional
// variant, satisfying the lookup contract cart validation depends on.
func (l *Ledger) CurrentStock(productID, variantID string) int {
	return l.CurrentAvailable(domain.Key{ProductID: productID, VariantID: variantID})
}

// slot returns the lock slot for a key, creating it on first use.
func (l *Ledger) slot(key domain.Key) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{}
		l.slots[key] = s
	}
	return s
}

func (l *Ledger) multiplierFor(productID string) float64 {
	class := ports.StockClassStandard
	if l.classifier != nil {
		class = l.classifier.Classify(productID)
	}
	if m, ok := l.cfg.ClassMultipliers[class]; ok {
		return m
	}
	return 1
}

// checkLowStockLocked fires a restock notification when the record is low on
// stock, escalating after repeated triggers without resolution. The caller
// holds the slot lock.
func (l *Ledger) checkLowStockLocked(ctx context.Context, rec *domain.Record) {
	if !rec.IsLowStock(l.multiplierFor(rec.Key.ProductID)) {
		return
	}

	rec.RestockAttempts++
	l.log.Info("low stock detected",
		zap.String("key", rec.Key.String()),
		zap.Int("available", rec.Available),
		zap.Int("reorder_point", rec.ReorderPoint),
		zap.Int("attempts", rec.RestockAttempts),
	)

	if l.sink == nil {
		return
	}
	if rec.RestockAttempts >= l.cfg.EscalationThreshold {
		l.sink.RestockEscalated(ctx, rec.Key, rec.RestockAttempts)
		return
	}
	l.sink.LowStock(ctx, rec.Key, rec.Available)
}

// resetRestockIfRecoveredLocked clears the escalation counter once stock has
// risen back above the reorder point. The caller holds the slot lock.
func (l *Ledger) resetRestockIfRecoveredLocked(rec *domain.Record) {
	if rec.RestockAttempts == 0 {
		return
	}
	if !rec.IsLowStock(l.multiplierFor(rec.Key.ProductID)) {
		rec.RestockAttempts = 0
	}
}
