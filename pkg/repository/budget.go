package repository

import (
	"context"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/shopspring/decimal"
)

// BudgetFilter narrows a budget list
type BudgetFilter struct {
	Category string
}

// BudgetRepository reads and writes budget items of one project and hides
// cost fields from contexts without financial visibility.
type BudgetRepository struct {
	t          *table[BudgetItem]
	financials bool
}

func newBudgetRepository(s scope) *BudgetRepository {
	return &BudgetRepository{
		t: newTable[BudgetItem](s, "budget_items", "Budget item",
			"category", "description", "quantity", "unit", "unit_cost", "est_total", "committed_total", "notes"),
		financials: s.sc.CanViewFinancials(),
	}
}

// present derives variance and applies redaction in place
func (r *BudgetRepository) present(items ...*BudgetItem) {
	for _, item := range items {
		if !r.financials {
			item.UnitCost = decimal.Zero
			item.EstTotal = decimal.Zero
			item.CommittedTotal = decimal.Zero
			item.PaidTotal = decimal.Zero
			item.Variance = decimal.Zero
			continue
		}
		item.Variance = item.CommittedTotal.Sub(item.EstTotal)
	}
}

// FindMany lists budget items by category
func (r *BudgetRepository) FindMany(ctx context.Context, filter BudgetFilter, page Page) ([]*BudgetItem, int64, error) {
	var where sq.Sqlizer
	if filter.Category != "" {
		where = sq.Eq{"category": filter.Category}
	}
	items, total, err := r.t.findMany(ctx, where, "category", page)
	if err != nil {
		return nil, 0, err
	}
	r.present(items...)
	return items, total, nil
}

// FindByID returns one budget item
func (r *BudgetRepository) FindByID(ctx context.Context, id string) (*BudgetItem, error) {
	item, err := r.t.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.present(item)
	return item, nil
}

// Create inserts a budget item. A zero estimate is derived from quantity and
// unit cost. Paid totals only move through payments.
func (r *BudgetRepository) Create(ctx context.Context, item *BudgetItem) error {
	item.PaidTotal = decimal.Zero
	if item.EstTotal.IsZero() {
		item.EstTotal = item.Quantity.Mul(item.UnitCost).Round(2)
	}
	if _, err := r.t.insert(ctx, item); err != nil {
		return err
	}
	r.present(item)
	return nil
}

// Update applies changes
func (r *BudgetRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*BudgetItem, error) {
	item, err := r.t.update(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	r.present(item)
	return item, nil
}

// Delete removes one budget item
func (r *BudgetRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

func (r *BudgetRepository) addPaid(ctx context.Context, id string, amount decimal.Decimal) error {
	item, err := r.t.findForUpdate(ctx, id)
	if err != nil {
		return err
	}
	return r.t.set(ctx, id, map[string]interface{}{"paid_total": item.PaidTotal.Add(amount)})
}

func (r *BudgetRepository) addCommitted(ctx context.Context, id string, amount decimal.Decimal) error {
	item, err := r.t.findForUpdate(ctx, id)
	if err != nil {
		return err
	}
	return r.t.set(ctx, id, map[string]interface{}{"committed_total": item.CommittedTotal.Add(amount)})
}

// BudgetUpsert is one entry of a bulk upsert. Items with an ID update that
// item; items without one are created.
type BudgetUpsert struct {
	ID      string
	Item    BudgetItem
	Changes map[string]interface{}
}

// BulkUpsertBudget applies every entry in one transaction
func (r *Repositories) BulkUpsertBudget(ctx context.Context, entries []BudgetUpsert) ([]*BudgetItem, error) {
	var out []*BudgetItem
	err := r.Tx(ctx, func(tx *Repositories) error {
		out = make([]*BudgetItem, 0, len(entries))
		for i := range entries {
			e := entries[i]
			if e.ID == "" {
				item := e.Item
				item.ID = ""
				if err := tx.Budget.Create(ctx, &item); err != nil {
					return err
				}
				out = append(out, &item)
				continue
			}
			item, err := tx.Budget.Update(ctx, e.ID, e.Changes)
			if err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CategorySummary totals one budget category
type CategorySummary struct {
	Category  string          `json:"category"`
	Items     int             `json:"items"`
	Estimated decimal.Decimal `json:"estimated"`
	Committed decimal.Decimal `json:"committed"`
	Paid      decimal.Decimal `json:"paid"`
	Variance  decimal.Decimal `json:"variance"`
	Severity  string          `json:"severity,omitempty"`
}

// BudgetSummary totals the whole budget
type BudgetSummary struct {
	Items      int               `json:"items"`
	Estimated  decimal.Decimal   `json:"estimated"`
	Committed  decimal.Decimal   `json:"committed"`
	Paid       decimal.Decimal   `json:"paid"`
	Variance   decimal.Decimal   `json:"variance"`
	Severity   string            `json:"severity,omitempty"`
	Redacted   bool              `json:"redacted"`
	Categories []CategorySummary `json:"categories"`
}

// Summary totals the budget by category. Without financial visibility only
// item counts are reported.
func (r *BudgetRepository) Summary(ctx context.Context) (*BudgetSummary, error) {
	items, err := r.t.findAll(ctx, nil, "category")
	if err != nil {
		return nil, err
	}

	byCategory := map[string]*CategorySummary{}
	summary := &BudgetSummary{Redacted: !r.financials}
	for _, item := range items {
		c, ok := byCategory[item.Category]
		if !ok {
			c = &CategorySummary{Category: item.Category}
			byCategory[item.Category] = c
		}
		c.Items++
		summary.Items++
		if r.financials {
			c.Estimated = c.Estimated.Add(item.EstTotal)
			c.Committed = c.Committed.Add(item.CommittedTotal)
			c.Paid = c.Paid.Add(item.PaidTotal)
		}
	}

	summary.Categories = make([]CategorySummary, 0, len(byCategory))
	for _, c := range byCategory {
		if r.financials {
			c.Variance = c.Committed.Sub(c.Estimated)
			c.Severity = rbac.VarianceSeverity(c.Estimated, c.Committed)
			summary.Estimated = summary.Estimated.Add(c.Estimated)
			summary.Committed = summary.Committed.Add(c.Committed)
			summary.Paid = summary.Paid.Add(c.Paid)
		}
		summary.Categories = append(summary.Categories, *c)
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Category < summary.Categories[j].Category
	})
	if r.financials {
		summary.Variance = summary.Committed.Sub(summary.Estimated)
		summary.Severity = rbac.VarianceSeverity(summary.Estimated, summary.Committed)
	}
	return summary, nil
}
