package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/httputil"
	"github.com/ignite/studio-automation/internal/service/campaign"
	"github.com/ignite/studio-automation/internal/triggers"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// writeServiceError maps service sentinels to HTTP statuses. Anything
// unrecognized is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound),
		errors.Is(err, domain.ErrRecordNotFound),
		errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrBookingNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrDuplicateName),
		errors.Is(err, domain.ErrNotCancellable):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, campaign.ErrValidation):
		httputil.Unprocessable(w, err.Error(), nil)
	case errors.Is(err, triggers.ErrNotScannable),
		errors.Is(err, triggers.ErrMissingUser):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

// ListCampaigns returns a page of campaigns.
//
//	GET /api/campaigns?trigger_kind=&active=&search=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, 25, 100)
	f := campaign.ListFilter{
		TriggerKind: domain.TriggerKind(q.Get("trigger_kind")),
		Search:      q.Get("search"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "active must be true or false")
			return
		}
		f.Active = &active
	}

	items, total, err := h.deps.Campaigns.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// CreateCampaign validates and stores a new campaign.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.deps.Campaigns.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.deps.Campaigns.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) ToggleCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ListRecords returns a page of a campaign's delivery records, oldest
// scheduled first.
//
//	GET /api/campaigns/{id}/records?status=&page=&limit=
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	f := campaign.RecordFilter{
		Status: domain.DeliveryStatus(r.URL.Query().Get("status")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	items, total, err := h.deps.Campaigns.ListRecords(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.DeliveryRecord{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// CancelRecord cancels one scheduled delivery record.
//
//	POST /api/records/{id}/cancel
func (h *Handlers) CancelRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Campaigns.CancelRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// GetAnalytics returns rates, top links and recent engagement.
//
//	GET /api/campaigns/{id}/analytics?top=&recent=
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	topN, _ := strconv.Atoi(r.URL.Query().Get("top"))
	recentN, _ := strconv.Atoi(r.URL.Query().Get("recent"))
	a, err := h.deps.Analytics.Analytics(r.Context(), chi.URLParam(r, "id"), topN, recentN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, a)
}

// ReconcileCampaign rewrites a campaign's counters from its records.
//
//	POST /api/campaigns/{id}/reconcile
func (h *Handlers) ReconcileCampaign(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Reconciler.ReconcileCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, st)
}
