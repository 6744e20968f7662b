package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/shopspring/decimal"
)

// RfpRepository reads and writes RFPs of one project
type RfpRepository struct {
	t *table[Rfp]
}

func newRfpRepository(s scope) *RfpRepository {
	return &RfpRepository{t: newTable[Rfp](s, "rfps", "RFP", "title", "description", "status", "due_date")}
}

// FindMany lists RFPs newest first
func (r *RfpRepository) FindMany(ctx context.Context, status string, page Page) ([]*Rfp, int64, error) {
	var where sq.Sqlizer
	if status != "" {
		where = sq.Eq{"status": status}
	}
	return r.t.findMany(ctx, where, "created_at DESC", page)
}

// FindByID returns one RFP
func (r *RfpRepository) FindByID(ctx context.Context, id string) (*Rfp, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a DRAFT RFP
func (r *RfpRepository) Create(ctx context.Context, rfp *Rfp) error {
	rfp.Status = RfpStatusDraft
	rfp.AwardedBidID = nil
	_, err := r.t.insert(ctx, rfp)
	return err
}

// Update applies changes. Awarded RFPs are closed for edits and the
// AWARDED status is only reachable through AwardBid.
func (r *RfpRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*Rfp, error) {
	rfp, err := r.t.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rfp.Status == RfpStatusAwarded {
		return nil, apperr.Conflict("RFP has already been awarded")
	}
	if status, ok := changes["status"].(string); ok && status == RfpStatusAwarded {
		return nil, apperr.Conflict("Use the award endpoint to award an RFP")
	}
	return r.t.update(ctx, id, changes)
}

// Delete removes one RFP with its items, invitations and bids
func (r *RfpRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

// RfpItemRepository reads and writes RFP items of one project
type RfpItemRepository struct {
	t    *table[RfpItem]
	rfps *table[Rfp]
}

func newRfpItemRepository(s scope) *RfpItemRepository {
	return &RfpItemRepository{
		t:    newTable[RfpItem](s, "rfp_items", "RFP item", "description", "quantity", "unit"),
		rfps: newTable[Rfp](s, "rfps", "RFP"),
	}
}

// FindByRfp lists the items of one RFP
func (r *RfpItemRepository) FindByRfp(ctx context.Context, rfpID string) ([]*RfpItem, error) {
	if _, err := r.rfps.findByID(ctx, rfpID); err != nil {
		return nil, err
	}
	return r.t.findAll(ctx, sq.Eq{"rfp_id": rfpID}, "created_at")
}

// Create adds an item to an RFP of the project
func (r *RfpItemRepository) Create(ctx context.Context, item *RfpItem) error {
	if _, err := r.rfps.findByID(ctx, item.RfpID); err != nil {
		return err
	}
	_, err := r.t.insert(ctx, item)
	return err
}

// Update applies changes
func (r *RfpItemRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*RfpItem, error) {
	return r.t.update(ctx, id, changes)
}

// Delete removes one item
func (r *RfpItemRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

// BidInvitationRepository reads and writes bid invitations of one project
type BidInvitationRepository struct {
	t       *table[BidInvitation]
	rfps    *table[Rfp]
	vendors *table[Vendor]
}

func newBidInvitationRepository(s scope) *BidInvitationRepository {
	return &BidInvitationRepository{
		t:       newTable[BidInvitation](s, "bid_invitations", "Bid invitation", "status"),
		rfps:    newTable[Rfp](s, "rfps", "RFP"),
		vendors: newTable[Vendor](s, "vendors", "Vendor"),
	}
}

// FindByRfp lists the invitations of one RFP
func (r *BidInvitationRepository) FindByRfp(ctx context.Context, rfpID string) ([]*BidInvitation, error) {
	return r.t.findAll(ctx, sq.Eq{"rfp_id": rfpID}, "invited_at")
}

// FindByID returns one invitation
func (r *BidInvitationRepository) FindByID(ctx context.Context, id string) (*BidInvitation, error) {
	return r.t.findByID(ctx, id)
}

// Invite invites a vendor to an RFP. Inviting the same vendor twice is not
// an error: the existing invitation is returned with created false.
func (r *BidInvitationRepository) Invite(ctx context.Context, rfpID, vendorID string, contactID *string) (*BidInvitation, bool, error) {
	rfp, err := r.rfps.findByID(ctx, rfpID)
	if err != nil {
		return nil, false, err
	}
	if rfp.Status == RfpStatusAwarded || rfp.Status == RfpStatusClosed {
		return nil, false, apperr.Conflict(fmt.Sprintf("Cannot invite vendors to a %s RFP", rfp.Status))
	}
	if _, err := r.vendors.findByID(ctx, vendorID); err != nil {
		return nil, false, err
	}

	inv := &BidInvitation{
		RfpID:     rfpID,
		VendorID:  vendorID,
		ContactID: contactID,
		Status:    InvitationStatusInvited,
		InvitedAt: r.t.now(),
	}
	n, err := r.t.insert(ctx, inv, "ON CONFLICT (rfp_id, vendor_id) DO NOTHING")
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		return inv, true, nil
	}

	existing, err := r.find(ctx, rfpID, vendorID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *BidInvitationRepository) find(ctx context.Context, rfpID, vendorID string) (*BidInvitation, error) {
	query, args, err := psql.Select(r.t.columns...).From(r.t.name).
		Where(sq.And{r.t.scoped(), sq.Eq{"rfp_id": rfpID, "vendor_id": vendorID}}).ToSql()
	if err != nil {
		return nil, err
	}
	var inv BidInvitation
	if err := sqlscan.Get(ctx, r.t.q, &inv, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperr.NotFound("Bid invitation")
		}
		return nil, fmt.Errorf("failed to get bid invitation: %w", err)
	}
	return &inv, nil
}

// InviteResult reports a multi-contact invite
type InviteResult struct {
	Invited        []*BidInvitation  `json:"invited"`
	AlreadyInvited []*BidInvitation  `json:"alreadyInvited"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// InviteContacts invites each contact's vendor to an RFP. A failing contact
// is recorded in Errors and does not stop the others.
func (r *Repositories) InviteContacts(ctx context.Context, rfpID string, contactIDs []string) (*InviteResult, error) {
	if _, err := r.Rfps.FindByID(ctx, rfpID); err != nil {
		return nil, err
	}

	result := &InviteResult{
		Invited:        []*BidInvitation{},
		AlreadyInvited: []*BidInvitation{},
		Errors:         map[string]string{},
	}
	for _, contactID := range contactIDs {
		vendor, err := r.Vendors.ForContact(ctx, contactID)
		if err != nil {
			result.Errors[contactID] = publicMessage(err)
			continue
		}
		contact := contactID
		inv, created, err := r.BidInvitations.Invite(ctx, rfpID, vendor.ID, &contact)
		if err != nil {
			result.Errors[contactID] = publicMessage(err)
			continue
		}
		if created {
			result.Invited = append(result.Invited, inv)
		} else {
			result.AlreadyInvited = append(result.AlreadyInvited, inv)
		}
	}
	return result, nil
}

func publicMessage(err error) string {
	if appErr, ok := apperr.As(err); ok && appErr.Kind != apperr.KindInternal {
		return appErr.Message
	}
	return apperr.GenericMessage
}

// BidRepository reads and writes bids of one project. Bid amounts are
// hidden from contexts without financial visibility.
type BidRepository struct {
	t           *table[Bid]
	rfps        *table[Rfp]
	invitations *BidInvitationRepository
	financials  bool
}

func newBidRepository(s scope) *BidRepository {
	return &BidRepository{
		t:           newTable[Bid](s, "bids", "Bid"),
		rfps:        newTable[Rfp](s, "rfps", "RFP"),
		invitations: newBidInvitationRepository(s),
		financials:  s.sc.CanViewFinancials(),
	}
}

func (r *BidRepository) present(bids ...*Bid) {
	if r.financials {
		return
	}
	for _, bid := range bids {
		bid.Amount = decimal.Zero
	}
}

// FindByRfp lists the bids of one RFP, lowest amount first. Without
// financial visibility they come in submission order so the ranking stays
// hidden too.
func (r *BidRepository) FindByRfp(ctx context.Context, rfpID string) ([]*Bid, error) {
	if _, err := r.rfps.findByID(ctx, rfpID); err != nil {
		return nil, err
	}
	orderBy := "amount"
	if !r.financials {
		orderBy = "submitted_at"
	}
	bids, err := r.t.findAll(ctx, sq.Eq{"rfp_id": rfpID}, orderBy)
	if err != nil {
		return nil, err
	}
	r.present(bids...)
	return bids, nil
}

// FindByID returns one bid
func (r *BidRepository) FindByID(ctx context.Context, id string) (*Bid, error) {
	bid, err := r.t.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.present(bid)
	return bid, nil
}

// SubmitBid records a bid against an invitation and marks the invitation
// SUBMITTED. An invitation takes one bid; a repeated submission is a
// Conflict and leaves the first bid in place.
func (r *Repositories) SubmitBid(ctx context.Context, invitationID string, bid *Bid) error {
	return r.Tx(ctx, func(tx *Repositories) error {
		inv, err := tx.BidInvitations.t.findForUpdate(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv.Status != InvitationStatusInvited {
			return apperr.Conflict(fmt.Sprintf("Invitation is %s and takes no further bids", inv.Status))
		}
		rfp, err := tx.Rfps.FindByID(ctx, inv.RfpID)
		if err != nil {
			return err
		}
		if rfp.Status == RfpStatusAwarded || rfp.Status == RfpStatusClosed {
			return apperr.Conflict(fmt.Sprintf("RFP is %s and no longer accepts bids", rfp.Status))
		}
		if !bid.Amount.IsPositive() {
			return apperr.Validation("Invalid bid", map[string]string{"amount": "must be greater than 0"})
		}

		now := tx.scope.now()
		bid.RfpID = inv.RfpID
		bid.VendorID = inv.VendorID
		bid.InvitationID = &inv.ID
		bid.Status = BidStatusSubmitted
		bid.SubmittedAt = now
		if _, err := tx.Bids.t.insert(ctx, bid); err != nil {
			return err
		}
		return tx.BidInvitations.t.set(ctx, inv.ID, map[string]interface{}{
			"status":       InvitationStatusSubmitted,
			"responded_at": now,
		})
	})
}

// AwardBid awards an RFP to one of its bids: the RFP becomes AWARDED, the
// bid ACCEPTED and every other bid on the RFP REJECTED.
func (r *Repositories) AwardBid(ctx context.Context, rfpID, bidID string) (*Rfp, error) {
	var out *Rfp
	err := r.Tx(ctx, func(tx *Repositories) error {
		rfp, err := tx.Rfps.FindByID(ctx, rfpID)
		if err != nil {
			return err
		}
		if rfp.Status == RfpStatusAwarded {
			return apperr.Conflict("RFP has already been awarded")
		}
		bid, err := tx.Bids.FindByID(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.RfpID != rfpID {
			return apperr.NotFound("Bid")
		}

		if err := tx.Rfps.t.set(ctx, rfpID, map[string]interface{}{
			"status":         RfpStatusAwarded,
			"awarded_bid_id": bidID,
		}); err != nil {
			return err
		}
		if err := tx.Bids.t.set(ctx, bidID, map[string]interface{}{"status": BidStatusAccepted}); err != nil {
			return err
		}

		query, args, err := psql.Update("bids").
			Set("status", BidStatusRejected).
			Set("updated_at", tx.scope.now()).
			Where(sq.And{tx.Bids.t.scoped(), sq.Eq{"rfp_id": rfpID}, sq.NotEq{"id": bidID}}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.scope.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to reject bids: %w", err)
		}

		out, err = tx.Rfps.FindByID(ctx, rfpID)
		return err
	})
	return out, err
}
