package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/platinummonkey/groundwork/pkg/apperr"
)

// ContactRepository reads and writes contacts of one project
type ContactRepository struct {
	t *table[Contact]
}

func newContactRepository(s scope) *ContactRepository {
	return &ContactRepository{t: newTable[Contact](s, "contacts", "Contact",
		"name", "company", "email", "phone", "trade", "type", "notes")}
}

// FindMany lists contacts by name, optionally of one type
func (r *ContactRepository) FindMany(ctx context.Context, contactType string, page Page) ([]*Contact, int64, error) {
	var where sq.Sqlizer
	if contactType != "" {
		where = sq.Eq{"type": contactType}
	}
	return r.t.findMany(ctx, where, "name", page)
}

// FindByID returns one contact
func (r *ContactRepository) FindByID(ctx context.Context, id string) (*Contact, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a contact
func (r *ContactRepository) Create(ctx context.Context, contact *Contact) error {
	if contact.Type == "" {
		contact.Type = "OTHER"
	}
	_, err := r.t.insert(ctx, contact)
	return err
}

// Update applies changes
func (r *ContactRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*Contact, error) {
	return r.t.update(ctx, id, changes)
}

// Delete removes one contact
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

// VendorRepository reads and writes vendors of one project
type VendorRepository struct {
	t        *table[Vendor]
	contacts *table[Contact]
}

func newVendorRepository(s scope) *VendorRepository {
	return &VendorRepository{
		t:        newTable[Vendor](s, "vendors", "Vendor", "name", "email", "phone", "trade"),
		contacts: newTable[Contact](s, "contacts", "Contact"),
	}
}

// FindMany lists vendors by name
func (r *VendorRepository) FindMany(ctx context.Context, trade string, page Page) ([]*Vendor, int64, error) {
	var where sq.Sqlizer
	if trade != "" {
		where = sq.Eq{"trade": trade}
	}
	return r.t.findMany(ctx, where, "name", page)
}

// FindByID returns one vendor
func (r *VendorRepository) FindByID(ctx context.Context, id string) (*Vendor, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a vendor. A linked contact must belong to the project.
func (r *VendorRepository) Create(ctx context.Context, vendor *Vendor) error {
	if vendor.ContactID != nil {
		if _, err := r.contacts.findByID(ctx, *vendor.ContactID); err != nil {
			return err
		}
	}
	_, err := r.t.insert(ctx, vendor)
	return err
}

// Update applies changes
func (r *VendorRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*Vendor, error) {
	return r.t.update(ctx, id, changes)
}

// Delete removes one vendor
func (r *VendorRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

// ForContact returns the vendor linked to a contact, creating it from the
// contact's details on first use.
func (r *VendorRepository) ForContact(ctx context.Context, contactID string) (*Vendor, error) {
	contact, err := r.contacts.findByID(ctx, contactID)
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Select(r.t.columns...).From(r.t.name).
		Where(sq.And{r.t.scoped(), sq.Eq{"contact_id": contactID}}).ToSql()
	if err != nil {
		return nil, err
	}
	var vendor Vendor
	err = sqlscan.Get(ctx, r.t.q, &vendor, query, args...)
	if err == nil {
		return &vendor, nil
	}
	if !sqlscan.NotFound(err) {
		return nil, err
	}

	name := contact.Company
	if name == "" {
		name = contact.Name
	}
	vendor = Vendor{
		Name:      name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Trade:     contact.Trade,
		ContactID: &contact.ID,
	}
	if _, err := r.t.insert(ctx, &vendor); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("Vendor for contact was created concurrently")
		}
		return nil, err
	}
	return &vendor, nil
}
