package account

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elimage/service/internal/response"
)

// Handler holds the admin HTTP handlers for callers.
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new account Handler.
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Lookup godoc
//
//	@Summary		Find a caller by address
//	@Description	Returns the caller registered for the given network address.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			addr	query		string	true	"Caller network address"
//	@Success		200		{object}	response.Envelope{data=Caller}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/admin/callers [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("addr")
	if addr == "" {
		response.BadRequest(w, "addr is required")
		return
	}
	c, err := h.svc.GetByAddr(r.Context(), addr)
	h.writeCaller(w, c, err)
}

// Get godoc
//
//	@Summary		Get a caller
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Caller ID"
//	@Success		200	{object}	response.Envelope{data=Caller}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/admin/callers/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetByID(r.Context(), id)
	h.writeCaller(w, c, err)
}

// Block godoc
//
//	@Summary		Block a caller
//	@Description	Blocked callers are refused further uploads with 403.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Caller ID"
//	@Success		200	{object}	response.Envelope{data=Caller}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/admin/callers/{id}/block [post]
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Block(r.Context(), id)
	if err == nil {
		h.log.Info("caller blocked", zap.String("caller", c.ID), zap.String("addr", c.Addr))
	}
	h.writeCaller(w, c, err)
}

// Unblock godoc
//
//	@Summary		Unblock a caller
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Caller ID"
//	@Success		200	{object}	response.Envelope{data=Caller}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/admin/callers/{id}/unblock [post]
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Unblock(r.Context(), id)
	if err == nil {
		h.log.Info("caller unblocked", zap.String("caller", c.ID), zap.String("addr", c.Addr))
	}
	h.writeCaller(w, c, err)
}

// Images godoc
//
//	@Summary		List a caller's uploads
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string	true	"Caller ID"
//	@Param			limit	query		int		false	"Maximum number of records (default 100)"
//	@Success		200		{object}	response.Envelope{data=[]Image}
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/admin/callers/{id}/images [get]
func (h *Handler) Images(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	images, err := h.svc.Images(r.Context(), id, limit)
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "caller not found")
			return
		}
		h.log.Error("list images", zap.Error(err))
		response.InternalError(w)
		return
	}
	if images == nil {
		images = []Image{}
	}
	response.OK(w, images)
}

func (h *Handler) writeCaller(w http.ResponseWriter, c *Caller, err error) {
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "caller not found")
			return
		}
		h.log.Error("caller lookup", zap.Error(err))
		response.InternalError(w)
		return
	}
	response.OK(w, c)
}

// callerID returns the {id} route parameter. Caller IDs are UUIDs, so
// anything else names no caller.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "caller not found")
		return "", false
	}
	return id.String(), true
}
