package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Installment is one scheduled payment of a finance entry. A task may be
// created to remind the house of it.
type Installment struct {
	ID      int64
	TaskID  *int64
	Amount  decimal.Decimal
	DueDate time.Time
}
