package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/shopspring/decimal"
)

func (s *Server) registerBiddingRoutes(router *mux.Router) {
	read := func(h scopedFunc) http.Handler { return s.module(rbac.ModuleBidding, rbac.ActionRead, h) }
	write := func(h scopedFunc) http.Handler { return s.module(rbac.ModuleBidding, rbac.ActionWrite, h) }

	router.Handle("/projects/{projectId}/rfps", read(s.listRfps)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/rfps", write(s.createRfp)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/rfps/{id}", read(s.getRfp)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/rfps/{id}", write(s.updateRfp)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/rfps/{id}", write(s.deleteRfp)).Methods(http.MethodDelete)

	router.Handle("/projects/{projectId}/rfps/{id}/items", read(s.listRfpItems)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/rfps/{id}/items", write(s.createRfpItem)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/rfps/{id}/items/{itemId}", write(s.updateRfpItem)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/rfps/{id}/items/{itemId}", write(s.deleteRfpItem)).Methods(http.MethodDelete)

	router.Handle("/projects/{projectId}/rfps/{id}/invitations", read(s.listInvitations)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/rfps/{id}/invite", write(s.inviteContacts)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/rfps/{id}/bids", read(s.listBids)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/rfps/{id}/award", write(s.awardBid)).Methods(http.MethodPost)
}

type rfpRequest struct {
	Title       string     `json:"title" validate:"required,max=300"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
}

type rfpPatch struct {
	Title       *string    `json:"title" db:"title" validate:"omitempty,min=1,max=300"`
	Description *string    `json:"description" db:"description"`
	Status      *string    `json:"status" db:"status" validate:"omitempty,oneof=DRAFT OPEN CLOSED"`
	DueDate     *time.Time `json:"dueDate" db:"due_date"`
}

func (s *Server) listRfps(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	rfps, total, err := repos.Rfps.FindMany(r.Context(), httputil.ParseQueryString(r, "status", ""), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, rfps, httputil.NewPagination(page, total))
}

// rfpDetail is an RFP with its items
type rfpDetail struct {
	*repository.Rfp
	Items []*repository.RfpItem `json:"items"`
}

func (s *Server) getRfp(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rfp, err := repos.Rfps.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	items, err := repos.RfpItems.FindByRfp(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rfpDetail{Rfp: rfp, Items: items})
}

func (s *Server) createRfp(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req rfpRequest
	if !decode(w, r, &req) {
		return
	}
	rfp := &repository.Rfp{Title: req.Title, Description: req.Description, DueDate: req.DueDate}
	if err := repos.Rfps.Create(r.Context(), rfp); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "rfp", rfp.ID, nil)
	httputil.WriteCreated(w, rfp)
}

func (s *Server) updateRfp(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch rfpPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	rfp, err := repos.Rfps.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "rfp", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, rfp)
}

func (s *Server) deleteRfp(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Rfps.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "rfp", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "RFP deleted", nil)
}

type rfpItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit" validate:"max=20"`
}

type rfpItemPatch struct {
	Description *string          `json:"description" db:"description" validate:"omitempty,min=1,max=500"`
	Quantity    *decimal.Decimal `json:"quantity" db:"quantity"`
	Unit        *string          `json:"unit" db:"unit" validate:"omitempty,max=20"`
}

func (s *Server) listRfpItems(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := repos.RfpItems.FindByRfp(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

func (s *Server) createRfpItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	rfpID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rfpItemRequest
	if !decode(w, r, &req) {
		return
	}
	item := &repository.RfpItem{RfpID: rfpID, Description: req.Description, Quantity: req.Quantity, Unit: req.Unit}
	if err := repos.RfpItems.Create(r.Context(), item); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "rfp_item", item.ID, map[string]interface{}{"rfpId": rfpID})
	httputil.WriteCreated(w, item)
}

func (s *Server) updateRfpItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	var patch rfpItemPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	item, err := repos.RfpItems.Update(r.Context(), itemID, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "rfp_item", itemID, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, item)
}

func (s *Server) deleteRfpItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	if err := repos.RfpItems.Delete(r.Context(), itemID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "rfp_item", itemID, nil)
	httputil.WriteMessage(w, http.StatusOK, "RFP item deleted", nil)
}

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	invitations, err := repos.BidInvitations.FindByRfp(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

type inviteContactsRequest struct {
	ContactIDs []string `json:"contactIds" validate:"required,min=1,max=200,dive,required"`
}

// inviteContacts invites each contact's vendor to the RFP. Contacts that
// fail are reported per id and do not stop the rest.
func (s *Server) inviteContacts(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req inviteContactsRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := repos.InviteContacts(r.Context(), id, req.ContactIDs)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if len(result.Invited) > 0 {
		ids := make([]string, 0, len(result.Invited))
		for _, inv := range result.Invited {
			ids = append(ids, inv.ID)
		}
		s.record(r, repos.SecurityContext(), audit.ActionInvite, "rfp", id, map[string]interface{}{"invitationIds": ids})
	}
	httputil.WriteSuccess(w, result)
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	bids, err := repos.Bids.FindByRfp(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, bids)
}

type awardRequest struct {
	BidID string `json:"bidId" validate:"required"`
}

// awardBid awards the RFP. The chosen bid is accepted and the others are
// rejected in the same transaction.
func (s *Server) awardBid(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req awardRequest
	if !decode(w, r, &req) {
		return
	}
	rfp, err := repos.AwardBid(r.Context(), id, req.BidID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionAward, "rfp", id, map[string]interface{}{"bidId": req.BidID})
	httputil.WriteSuccess(w, rfp)
}
