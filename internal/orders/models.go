// Package orders implements the trailing-stop order engine: order
// entities and their trigger math, the durable JSON store, per-kind
// policies for validation, pricing and execution, and the manager that
// runs the evaluation loop.
package orders

import (
	"time"

	"github.com/google/uuid"
)

// Status is the order lifecycle state. Serialized lowercase.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusTriggered Status = "triggered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

func (s Status) valid() bool {
	switch s {
	case StatusWaiting, StatusTriggered, StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible. Orders in
// error stay there until a human cancels or recreates them.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// Kind discriminates the two trailing-stop variants. It is derived from
// the order shape and never serialized.
type Kind string

const (
	KindSell Kind = "sell"
	KindBuy  Kind = "buy"
)

// unsetLowestPrice is the no-observation sentinel for buy orders. Any
// real price is below it, so the first observation always replaces it.
const unsetLowestPrice = 1e10

// Order is the behavior both trailing-stop kinds expose to the manager
// and the HTTP layer.
type Order interface {
	GetID() string
	GetStockCode() string
	GetQuantity() int
	GetStatus() Status
	Kind() Kind

	// TriggerPrice returns the level the order would fire at given the
	// extremum observed so far; false until a first observation exists.
	TriggerPrice() (float64, bool)
	// ShouldTrigger evaluates currentPrice against the trigger contract.
	// It may move the tracked extremum; the observation that moves it
	// never triggers.
	ShouldTrigger(currentPrice float64) bool

	RecordCheck(price *float64, at time.Time)
	SetComment(comment string)
	MarkTriggered()
	MarkCompleted()
	MarkCancelled()
	MarkError(message string)

	// Clone returns a deep copy safe to hand out past the manager's lock.
	Clone() Order

	// applyUpdate mutates the order in place; only valid while waiting,
	// which the manager enforces.
	applyUpdate(u OrderUpdate) error
}

// orderCore carries the fields and lifecycle mutations shared by both
// kinds. It is embedded by value so its exported fields participate in
// JSON directly.
type orderCore struct {
	ID               string     `json:"id"`
	StockCode        string     `json:"stock_code"`
	Quantity         int        `json:"quantity"`
	TrailingAmount   *float64   `json:"trailing_amount"`
	TrailingPercent  *float64   `json:"trailing_percent"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastCheckedPrice *float64   `json:"last_checked_price"`
	LastCheckTime    *time.Time `json:"last_check_time"`
	ErrorMessage     string     `json:"error_message"`
	Comments         string     `json:"comments"`
}

func newOrderCore(stockCode string, quantity int, trailingAmount, trailingPercent *float64) orderCore {
	now := time.Now()
	return orderCore{
		ID:              uuid.New().String(),
		StockCode:       stockCode,
		Quantity:        quantity,
		TrailingAmount:  copyFloat(trailingAmount),
		TrailingPercent: copyFloat(trailingPercent),
		Status:          StatusWaiting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (o *orderCore) GetID() string        { return o.ID }
func (o *orderCore) GetStockCode() string { return o.StockCode }
func (o *orderCore) GetQuantity() int     { return o.Quantity }
func (o *orderCore) GetStatus() Status    { return o.Status }

func (o *orderCore) touch() { o.UpdatedAt = time.Now() }

// RecordCheck notes the latest price observation. A nil price means the
// check ran but no price was available.
func (o *orderCore) RecordCheck(price *float64, at time.Time) {
	o.LastCheckedPrice = copyFloat(price)
	t := at
	o.LastCheckTime = &t
	o.UpdatedAt = at
}

func (o *orderCore) SetComment(comment string) {
	o.Comments = comment
	o.touch()
}

func (o *orderCore) MarkTriggered() {
	o.Status = StatusTriggered
	o.touch()
}

func (o *orderCore) MarkCompleted() {
	o.Status = StatusCompleted
	o.touch()
}

func (o *orderCore) MarkCancelled() {
	o.Status = StatusCancelled
	o.touch()
}

func (o *orderCore) MarkError(message string) {
	o.Status = StatusError
	o.ErrorMessage = message
	o.touch()
}

// SellOrder protects an existing holding: it rides the price up and fires
// when the price falls back by the trailing distance, never below
// MinPrice.
type SellOrder struct {
	orderCore
	MinPrice     float64 `json:"min_price"`
	HighestPrice float64 `json:"highest_price"`
}

// NewSellOrder validates the parameters and returns a waiting sell order.
func NewSellOrder(stockCode string, minPrice float64, quantity int, trailingAmount, trailingPercent *float64) (*SellOrder, error) {
	if err := validateTrailing(trailingAmount, trailingPercent); err != nil {
		return nil, err
	}
	if minPrice <= 0 {
		return nil, newValidationError("minimum price must be positive")
	}
	if quantity <= 0 {
		return nil, newValidationError("quantity must be positive")
	}
	return &SellOrder{
		orderCore: newOrderCore(stockCode, quantity, trailingAmount, trailingPercent),
		MinPrice:  minPrice,
	}, nil
}

func (o *SellOrder) Kind() Kind { return KindSell }

func (o *SellOrder) TriggerPrice() (float64, bool) {
	if o.HighestPrice == 0 {
		return 0, false
	}
	if o.TrailingAmount != nil {
		return o.HighestPrice - *o.TrailingAmount, true
	}
	return o.HighestPrice * (1 - *o.TrailingPercent/100), true
}

// ShouldTrigger rides new highs without firing; otherwise the order fires
// when the price has retreated to the trigger level, provided both the
// current price and the high are at or above the floor.
func (o *SellOrder) ShouldTrigger(currentPrice float64) bool {
	if o.Status != StatusWaiting {
		return false
	}
	if currentPrice > o.HighestPrice {
		o.HighestPrice = currentPrice
		return false
	}
	trigger, ok := o.TriggerPrice()
	if !ok {
		return false
	}
	return currentPrice <= trigger && currentPrice >= o.MinPrice && o.HighestPrice >= o.MinPrice
}

func (o *SellOrder) Clone() Order {
	clone := *o
	clone.TrailingAmount = copyFloat(o.TrailingAmount)
	clone.TrailingPercent = copyFloat(o.TrailingPercent)
	clone.LastCheckedPrice = copyFloat(o.LastCheckedPrice)
	clone.LastCheckTime = copyTime(o.LastCheckTime)
	return &clone
}

// BuyOrder enters a position on weakness: it rides the price down and
// fires when the price sits within the trailing distance above the low,
// never above MaxPrice.
type BuyOrder struct {
	orderCore
	MaxPrice    float64 `json:"max_price"`
	LowestPrice float64 `json:"lowest_price"`
}

// NewBuyOrder validates the parameters and returns a waiting buy order.
func NewBuyOrder(stockCode string, maxPrice float64, quantity int, trailingAmount, trailingPercent *float64) (*BuyOrder, error) {
	if err := validateTrailing(trailingAmount, trailingPercent); err != nil {
		return nil, err
	}
	if maxPrice <= 0 {
		return nil, newValidationError("maximum price must be positive")
	}
	if quantity <= 0 {
		return nil, newValidationError("quantity must be positive")
	}
	return &BuyOrder{
		orderCore:   newOrderCore(stockCode, quantity, trailingAmount, trailingPercent),
		MaxPrice:    maxPrice,
		LowestPrice: unsetLowestPrice,
	}, nil
}

func (o *BuyOrder) Kind() Kind { return KindBuy }

func (o *BuyOrder) TriggerPrice() (float64, bool) {
	if o.LowestPrice == unsetLowestPrice {
		return 0, false
	}
	if o.TrailingAmount != nil {
		return o.LowestPrice + *o.TrailingAmount, true
	}
	return o.LowestPrice * (1 + *o.TrailingPercent/100), true
}

// ShouldTrigger rides new lows without firing; otherwise the order fires
// when the price sits at or below the trigger level, provided both the
// current price and the low are at or below the ceiling.
func (o *BuyOrder) ShouldTrigger(currentPrice float64) bool {
	if o.Status != StatusWaiting {
		return false
	}
	if o.LowestPrice == unsetLowestPrice || currentPrice < o.LowestPrice {
		o.LowestPrice = currentPrice
		return false
	}
	trigger, ok := o.TriggerPrice()
	if !ok {
		return false
	}
	return currentPrice <= trigger && currentPrice <= o.MaxPrice && o.LowestPrice <= o.MaxPrice
}

func (o *BuyOrder) Clone() Order {
	clone := *o
	clone.TrailingAmount = copyFloat(o.TrailingAmount)
	clone.TrailingPercent = copyFloat(o.TrailingPercent)
	clone.LastCheckedPrice = copyFloat(o.LastCheckedPrice)
	clone.LastCheckTime = copyTime(o.LastCheckTime)
	return &clone
}

// OrderUpdate is a partial update applied to a waiting order. Nil fields
// are left alone. Setting one trailing field clears the other; setting
// both in one update is invalid.
type OrderUpdate struct {
	ThresholdPrice  *float64
	Quantity        *int
	TrailingAmount  *float64
	TrailingPercent *float64
}

func (u OrderUpdate) validate() error {
	if u.TrailingAmount != nil && u.TrailingPercent != nil {
		return newValidationError("cannot specify both trailing_amount and trailing_percent")
	}
	if u.TrailingAmount != nil && *u.TrailingAmount <= 0 {
		return newValidationError("trailing amount must be positive")
	}
	if u.TrailingPercent != nil && (*u.TrailingPercent <= 0 || *u.TrailingPercent >= 100) {
		return newValidationError("trailing percent must be between 0 and 100")
	}
	if u.Quantity != nil && *u.Quantity <= 0 {
		return newValidationError("quantity must be positive")
	}
	return nil
}

func (o *orderCore) applyTrailingUpdate(u OrderUpdate) {
	if u.Quantity != nil {
		o.Quantity = *u.Quantity
	}
	if u.TrailingAmount != nil {
		o.TrailingAmount = copyFloat(u.TrailingAmount)
		o.TrailingPercent = nil
	}
	if u.TrailingPercent != nil {
		o.TrailingPercent = copyFloat(u.TrailingPercent)
		o.TrailingAmount = nil
	}
}

func (o *SellOrder) applyUpdate(u OrderUpdate) error {
	if err := u.validate(); err != nil {
		return err
	}
	if u.ThresholdPrice != nil && *u.ThresholdPrice <= 0 {
		return newValidationError("minimum price must be positive")
	}
	if u.ThresholdPrice != nil {
		o.MinPrice = *u.ThresholdPrice
	}
	o.applyTrailingUpdate(u)
	o.touch()
	return nil
}

func (o *BuyOrder) applyUpdate(u OrderUpdate) error {
	if err := u.validate(); err != nil {
		return err
	}
	if u.ThresholdPrice != nil && *u.ThresholdPrice <= 0 {
		return newValidationError("maximum price must be positive")
	}
	if u.ThresholdPrice != nil {
		o.MaxPrice = *u.ThresholdPrice
	}
	o.applyTrailingUpdate(u)
	o.touch()
	return nil
}

func validateTrailing(amount, percent *float64) error {
	if amount != nil && percent != nil {
		return newValidationError("cannot specify both trailing_amount and trailing_percent")
	}
	if amount == nil && percent == nil {
		return newValidationError("must specify either trailing_amount or trailing_percent")
	}
	if amount != nil && *amount <= 0 {
		return newValidationError("trailing amount must be positive")
	}
	if percent != nil && (*percent <= 0 || *percent >= 100) {
		return newValidationError("trailing percent must be between 0 and 100")
	}
	return nil
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
