package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/contextkeys"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/shopspring/decimal"
)

func (s *Server) registerWebhookRoutes(router *mux.Router) {
	router.HandleFunc("/bids", s.receiveBid).Methods(http.MethodPost)
}

type bidWebhookRequest struct {
	InvitationID string          `json:"invitationId" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Notes        string          `json:"notes"`
}

// webhookContext is the security context of a verified webhook call. It has
// no user and can only touch bidding data of the named project.
func webhookContext(projectID string) *rbac.SecurityContext {
	return rbac.NewSecurityContext("", projectID, "", "", true, rbac.ModuleAccess{
		Module:  rbac.ModuleBidding,
		CanView: true,
		CanEdit: true,
	})
}

// receiveBid records a bid submitted by a vendor portal
func (s *Server) receiveBid(w http.ResponseWriter, r *http.Request) {
	projectID := contextkeys.GetProjectID(r.Context())
	exists, err := s.engine.Store().ProjectExists(r.Context(), projectID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !exists {
		httputil.WriteError(w, r, apperr.NotFound("Project"))
		return
	}

	var req bidWebhookRequest
	if !decode(w, r, &req) {
		return
	}

	sc := webhookContext(projectID)
	repos, err := repository.New(s.conn, sc, s.repoOpts...)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	bid := &repository.Bid{Amount: req.Amount, Notes: req.Notes}
	if err := repos.SubmitBid(r.Context(), req.InvitationID, bid); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionWebhook, "bid", bid.ID, map[string]interface{}{
		"invitationId": req.InvitationID,
		"rfpId":        bid.RfpID,
	})
	httputil.WriteCreated(w, bid)
}
