package ledger

import (
	"github.com/guarzo/ledgerapi/common/model"
)

// Summarize totals income and expense entries. Each entry counts price times quantity.
// LastRecord is the most recently created entry, falling back to the entry date
// when createdAt cannot be compared.
func Summarize(products []model.Product) model.Balance {
	var b model.Balance
	for i := range products {
		p := &products[i]
		amount := p.Price * float64(p.Quantity)
		if p.Category {
			b.Income += amount
		} else {
			b.Expense += amount
		}
		b.Count++
		if b.LastRecord == nil || newer(p, b.LastRecord) {
			b.LastRecord = p
		}
	}
	b.Total = b.Income - b.Expense
	return b
}

func newer(a, b *model.Product) bool {
	if a.CreatedAt != "" && b.CreatedAt != "" {
		// ISO-8601 timestamps order lexically
		return a.CreatedAt > b.CreatedAt
	}
	da, errA := model.ParseAPIDate(a.Date)
	db, errB := model.ParseAPIDate(b.Date)
	if errA != nil || errB != nil {
		return false
	}
	return da.After(db)
}
