package permitshandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/auth"
	"permitflow/internal/domain/balance"
	"permitflow/internal/domain/permits"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/blobstore"
	"permitflow/internal/platform/jobs"
	"permitflow/internal/transport/http/api"
	"permitflow/internal/transport/http/middleware"
	"permitflow/internal/transport/http/shared"
)

type DocumentStore interface {
	Put(ctx context.Context, r io.Reader, fileName string) (blobstore.Stored, error)
}

type Handler struct {
	Service     *permits.Service
	Perms       middleware.PermissionStore
	Documents   DocumentStore
	Jobs        *jobs.Service
	Idempotency middleware.IdempotencyBackend
}

const maxDocumentMultipartBytes = 8 * 1024 * 1024

func NewHandler(service *permits.Service, perms middleware.PermissionStore, docs DocumentStore, jobsSvc *jobs.Service, idem middleware.IdempotencyBackend) *Handler {
	return &Handler{Service: service, Perms: perms, Documents: docs, Jobs: jobsSvc, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/permits", func(r chi.Router) {
		create := r.With(middleware.RequirePermission(auth.PermPermitsWrite, h.Perms))
		if h.Idempotency != nil {
			create = create.With(middleware.Idempotent(h.Idempotency))
		}
		create.Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermPermitsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermPermitsRead, h.Perms)).Get("/types", h.handleListTypes)
		r.With(middleware.RequirePermission(auth.PermPermitsApprove, h.Perms)).Get("/approvals/pending", h.handlePending)
		r.With(middleware.RequirePermission(auth.PermAttestationsWrite, h.Perms)).Post("/attestations", h.handleAttest)
		r.With(middleware.RequirePermission(auth.PermBalancesRead, h.Perms)).Get("/balances", h.handleBalances)
		r.With(middleware.RequirePermission(auth.PermBalancesReset, h.Perms)).Post("/balances/reset", h.handleResetBalances)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser, validPermitID)
			r.With(middleware.RequirePermission(auth.PermPermitsRead, h.Perms)).Get("/{permitID}", h.handleGet)
			r.With(middleware.RequirePermission(auth.PermPermitsWrite, h.Perms)).Put("/{permitID}", h.handleUpdate)
			r.With(middleware.RequirePermission(auth.PermPermitsWrite, h.Perms)).Post("/{permitID}/documents", h.handleUploadDocument)
			r.With(middleware.RequirePermission(auth.PermPermitsWrite, h.Perms)).Post("/{permitID}/submit", h.handleSubmit)
			r.With(middleware.RequirePermission(auth.PermPermitsApprove, h.Perms)).Post("/{permitID}/approve", h.handleApprove)
			r.With(middleware.RequirePermission(auth.PermPermitsApprove, h.Perms)).Post("/{permitID}/reject", h.handleReject)
			r.With(middleware.RequirePermission(auth.PermPermitsWrite, h.Perms)).Post("/{permitID}/cancel", h.handleCancel)
		})
	})
}

type permitPayload struct {
	UserID      string    `json:"userId"`
	TypeID      string    `json:"typeId" validate:"required"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required"`
	Reason      string    `json:"reason" validate:"max=1000"`
	Priority    int       `json:"priority" validate:"omitempty,min=1,max=3"`
	IsUrgent    bool      `json:"isUrgent"`
	CapOverride bool      `json:"capOverride"`
}

type decisionPayload struct {
	Comments string `json:"comments" validate:"max=2000"`
}

type cancelPayload struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	var payload permitPayload
	if !shared.DecodeAndValidate(w, r, &payload, requestID) {
		return
	}
	created, err := h.Service.Create(r.Context(), user.UserID, permits.CreateInput{
		UserID:      strings.TrimSpace(payload.UserID),
		TypeID:      payload.TypeID,
		Start:       payload.StartTime,
		End:         payload.EndTime,
		Reason:      payload.Reason,
		Priority:    payload.Priority,
		IsUrgent:    payload.IsUrgent,
		CapOverride: payload.CapOverride,
	})
	if err != nil {
		writeError(w, r, "permit_create_failed", err)
		return
	}
	api.Created(w, created, requestID)
}

// handleList returns the caller's requests. HR may pass userId to list
// someone else's.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	userID, ok := h.subject(w, r, user)
	if !ok {
		return
	}
	page := shared.PermitPages.From(r)
	items, total, err := h.Service.ListByUser(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, "permit_list_failed", err)
		return
	}
	shared.SetTotal(w, total)
	api.Success(w, items, requestID)
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Service.Rules.Rules(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user := middleware.MustUser(r)
	detail, err := h.Service.Get(r.Context(), user.UserID, chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, r, "permit_get_failed", err)
		return
	}
	api.Success(w, detail, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	var payload permitPayload
	if !shared.DecodeAndValidate(w, r, &payload, requestID) {
		return
	}
	updated, err := h.Service.UpdateDraft(r.Context(), user.UserID, chi.URLParam(r, "permitID"), permits.UpdateInput{
		TypeID:      payload.TypeID,
		Start:       payload.StartTime,
		End:         payload.EndTime,
		Reason:      payload.Reason,
		Priority:    payload.Priority,
		IsUrgent:    payload.IsUrgent,
		CapOverride: payload.CapOverride,
	})
	if err != nil {
		writeError(w, r, "permit_update_failed", err)
		return
	}
	api.Success(w, updated, requestID)
}

// handleUploadDocument stores the multipart "file" part and attaches it to
// the draft under the "docType" form value.
func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	if h.Documents == nil {
		api.Fail(w, http.StatusServiceUnavailable, "documents_unavailable", "document storage not configured", requestID)
		return
	}
	if err := r.ParseMultipartForm(maxDocumentMultipartBytes); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload", requestID)
		return
	}
	docType := strings.TrimSpace(r.FormValue("docType"))
	if docType == "" {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "docType", Code: "required", Reason: "is required"}})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "file", Code: "required", Reason: "is required"}})
		return
	}
	defer file.Close()

	stored, err := h.Documents.Put(r.Context(), file, header.Filename)
	if errors.Is(err, blobstore.ErrTooLarge) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "document_too_large", "document exceeds the upload limit", requestID)
		return
	}
	if err != nil {
		slog.Error("document store failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "document_store_failed", "failed to store document", requestID)
		return
	}

	updated, err := h.Service.AttachDocument(r.Context(), user.UserID, chi.URLParam(r, "permitID"), policy.Document{
		Ref:     stored.Ref,
		DocType: docType,
		Digest:  stored.Digest,
	})
	if err != nil {
		writeError(w, r, "document_attach_failed", err)
		return
	}
	api.Created(w, updated, requestID)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := middleware.MustUser(r)
	submitted, err := h.Service.Submit(r.Context(), user.UserID, chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, r, "permit_submit_failed", err)
		return
	}
	api.Success(w, submitted, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.DecisionApprove)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.DecisionReject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision approval.Decision) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	var payload decisionPayload
	if r.ContentLength != 0 && !shared.DecodeAndValidate(w, r, &payload, requestID) {
		return
	}
	result, err := h.Service.Decide(r.Context(), permits.DecisionInput{
		RequestID:  chi.URLParam(r, "permitID"),
		ApproverID: user.UserID,
		Decision:   decision,
		Comments:   payload.Comments,
	})
	if err != nil {
		writeError(w, r, "permit_decision_failed", err)
		return
	}
	api.Success(w, result, requestID)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	var payload cancelPayload
	if r.ContentLength != 0 && !shared.DecodeAndValidate(w, r, &payload, requestID) {
		return
	}
	cancelled, err := h.Service.Cancel(r.Context(), user.UserID, chi.URLParam(r, "permitID"), strings.TrimSpace(payload.Reason))
	if err != nil {
		writeError(w, r, "permit_cancel_failed", err)
		return
	}
	api.Success(w, cancelled, requestID)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	user := middleware.MustUser(r)
	items, err := h.Service.PendingApprovals(r.Context(), user.UserID)
	if err != nil {
		writeError(w, r, "pending_list_failed", err)
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAttest(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	var payload permits.Attestation
	if !shared.DecodeAndValidate(w, r, &payload, requestID) {
		return
	}
	payload.Actor = user.UserID
	result, err := h.Service.Attest(r.Context(), payload)
	if err != nil {
		writeError(w, r, "attestation_failed", err)
		return
	}
	api.Success(w, result, requestID)
}

// handleBalances lists the buckets of one year, the current one by default.
func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	user, requestID := middleware.MustUser(r), middleware.GetRequestID(r.Context())
	userID, ok := h.subject(w, r, user)
	if !ok {
		return
	}
	year := h.Service.Config.Local(h.Service.Clock.Now()).Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 9999 {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "year", Code: "invalid", Reason: "must be a four digit year"}})
			return
		}
		year = parsed
	}
	buckets, err := h.Service.Ledger.ListBuckets(r.Context(), userID, year)
	if err != nil {
		writeError(w, r, "balance_list_failed", err)
		return
	}
	if buckets == nil {
		buckets = []balance.Bucket{}
	}
	api.Success(w, buckets, requestID)
}

func (h *Handler) handleResetBalances(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if h.Jobs == nil {
		api.Fail(w, http.StatusServiceUnavailable, "jobs_unavailable", "job runner not configured", requestID)
		return
	}
	summary, err := h.Jobs.RunNow(r.Context(), jobs.JobBalanceReset, h.Jobs.ResetBalances)
	if err != nil {
		writeError(w, r, "balance_reset_failed", err)
		return
	}
	api.Success(w, summary, requestID)
}

// validPermitID answers 404 for ids that cannot name a permit request.
func validPermitID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := uuid.Parse(chi.URLParam(r, "permitID")); err != nil {
			api.Fail(w, http.StatusNotFound, "not_found", "permit request not found", middleware.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// subject resolves the userId query parameter. Only HR may look at another
// user's data.
func (h *Handler) subject(w http.ResponseWriter, r *http.Request, user auth.UserContext) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" || userID == user.UserID {
		return user.UserID, true
	}
	if !middleware.Can(r, h.Perms, auth.PermPermitsAdminister) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not permitted", middleware.GetRequestID(r.Context()))
		return "", false
	}
	return userID, true
}

// writeError maps domain errors onto HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, code string, err error) {
	requestID := middleware.GetRequestID(r.Context())
	var verr *policy.ValidationError
	switch {
	case errors.As(err, &verr):
		shared.FailValidation(w, requestID, shared.PolicyIssues(verr))
	case errors.Is(err, policy.ErrUnknownType), errors.Is(err, policy.ErrValidation), errors.Is(err, approval.ErrInvalidDecision):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, permits.ErrUnauthorized), errors.Is(err, approval.ErrUnauthorized):
		api.Fail(w, http.StatusForbidden, "forbidden", "not permitted", requestID)
	case errors.Is(err, permits.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "permit request not found", requestID)
	case errors.Is(err, permits.ErrInvalidStateTransition):
		api.Fail(w, http.StatusConflict, "invalid_state_transition", err.Error(), requestID)
	case errors.Is(err, permits.ErrTransient):
		api.Throttle(w, http.StatusServiceUnavailable, 1, "transient_conflict", "temporary conflict, retry the operation", requestID)
	case errors.Is(err, permits.ErrConcurrentModification):
		api.Fail(w, http.StatusConflict, "concurrent_modification", err.Error(), requestID)
	case errors.Is(err, permits.ErrNoHRApprover), errors.Is(err, approval.ErrNoApprover):
		api.Fail(w, http.StatusUnprocessableEntity, "no_approver", err.Error(), requestID)
	default:
		slog.Error("permit request failed", "code", code, "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, code, "internal error", requestID)
	}
}
