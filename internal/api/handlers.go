// Package api exposes HTTP handlers for the baseline service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/baseline/internal/auth"
	"example.com/baseline/internal/cache"
	"example.com/baseline/internal/domain"
	"example.com/baseline/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service. The cache is
// optional; with a nil cache every read goes straight to the repository.
type Handler struct {
	service *domain.Service
	cache   *cache.Cache
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, cacheLayer *cache.Cache) *Handler {
	return &Handler{service: service, cache: cacheLayer}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/baselines", h.baselines)
	mux.HandleFunc("/v1/baselines/progress", h.progress)
	mux.HandleFunc("/v1/baselines/stop", h.stop)
	mux.HandleFunc("/v1/baselines/datapoints", h.dataPoints)
	mux.HandleFunc("/v1/baselines/datapoints/batch", h.dataPointBatch)
	mux.HandleFunc("/v1/baselines/calibration", h.calibration)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) baselines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startBaseline(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startBaseline(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	var req StartBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	baseline, err := h.service.Start(r.Context(), claims.TenantID, req.UserID, req.TargetDays)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, "already_active", "an active baseline already exists for this user")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	h.invalidate(r, claims.TenantID, req.UserID)
	writeJSON(w, http.StatusCreated, toBaselineView(*baseline))
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	var req StopBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}

	baseline, err := h.service.Stop(r.Context(), claims.TenantID, req.UserID)
	if err != nil {
		h.invalidate(r, claims.TenantID, req.UserID)

		var notReady *domain.NotReadyError
		switch {
		case errors.Is(err, domain.ErrNoActiveBaseline):
			writeError(w, http.StatusNotFound, "no_active_baseline", "no active baseline for this user")
		case errors.As(err, &notReady):
			writeJSON(w, http.StatusConflict, NotReadyResponse{
				Type:      "not_ready",
				Detail:    "baseline does not meet the readiness criteria",
				Readiness: toReadinessView(notReady.Readiness),
			})
		case errors.Is(err, domain.ErrInsufficientData):
			writeError(w, http.StatusUnprocessableEntity, "insufficient_data", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	h.invalidate(r, claims.TenantID, req.UserID)
	writeJSON(w, http.StatusOK, toBaselineView(*baseline))
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeBaselinesRead, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetProgress(r.Context(), claims.TenantID, userID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, toProgressView(*cached))
			return
		}
	}

	progress, err := h.service.Progress(r.Context(), claims.TenantID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if h.cache != nil {
		_ = h.cache.SetProgress(r.Context(), claims.TenantID, userID, progress)
	}
	writeJSON(w, http.StatusOK, toProgressView(*progress))
}

func (h *Handler) dataPoints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ingestDataPoint(w, r)
	case http.MethodGet:
		h.listDataPoints(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) ingestDataPoint(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	var req IngestDataPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}

	point, err := h.service.Ingest(r.Context(), claims.TenantID, req.UserID, req.toInput())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoActiveBaseline):
			writeError(w, http.StatusNotFound, "no_active_baseline", "no active baseline for this user")
		case errors.Is(err, domain.ErrInvalidDataPoint):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	h.invalidate(r, claims.TenantID, req.UserID)
	writeJSON(w, http.StatusCreated, toDataPointView(*point))
}

func (h *Handler) dataPointBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	var req IngestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "items must not be empty")
		return
	}

	inputs := make([]domain.IngestInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, item.toInput())
	}

	result, err := h.service.IngestBatch(r.Context(), claims.TenantID, req.UserID, inputs)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveBaseline) {
			writeError(w, http.StatusNotFound, "no_active_baseline", "no active baseline for this user")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	h.invalidate(r, claims.TenantID, req.UserID)

	resp := IngestBatchResponse{
		Accepted: make([]DataPointView, 0, len(result.Accepted)),
		Rejected: make([]BatchFailureView, 0, len(result.Rejected)),
	}
	for _, point := range result.Accepted {
		resp.Accepted = append(resp.Accepted, toDataPointView(point))
	}
	for _, failure := range result.Rejected {
		resp.Rejected = append(resp.Rejected, BatchFailureView{Index: failure.Index, Reason: failure.Reason})
	}

	status := http.StatusCreated
	if len(resp.Rejected) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

func (h *Handler) listDataPoints(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeBaselinesRead, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	points, next, err := h.service.ListDataPoints(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]DataPointView, 0, len(points))
	for _, point := range points {
		items = append(items, toDataPointView(point))
	}
	writeJSON(w, http.StatusOK, ListDataPointsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) calibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeBaselinesRead, auth.ScopeBaselinesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetCalibration(r.Context(), claims.TenantID, userID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, *cached)
			return
		}
	}

	summary, err := h.service.Calibration(r.Context(), claims.TenantID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "not_found", "no calibration recorded for this user")
		return
	}

	if h.cache != nil {
		_ = h.cache.SetCalibration(r.Context(), claims.TenantID, userID, summary)
	}
	writeJSON(w, http.StatusOK, *summary)
}

// requireScope resolves claims and enforces that at least one scope matches.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func (h *Handler) invalidate(r *http.Request, tenantID, userID string) {
	if h.cache == nil {
		return
	}
	// Stale reads expire via TTL, so a failed invalidation is not fatal.
	_ = h.cache.Invalidate(r.Context(), tenantID, userID)
}

// StartBaselineRequest is the payload for POST /v1/baselines.
type StartBaselineRequest struct {
	UserID     string `json:"user_id"`
	TargetDays int    `json:"target_days"`
}

// Validate ensures request correctness.
func (r StartBaselineRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if r.TargetDays < 0 {
		return errors.New("target_days must be >= 0")
	}
	return nil
}

// StopBaselineRequest is the payload for POST /v1/baselines/stop.
type StopBaselineRequest struct {
	UserID string `json:"user_id"`
}

// IngestDataPointRequest is the payload for POST /v1/baselines/datapoints.
type IngestDataPointRequest struct {
	UserID     string            `json:"user_id"`
	Category   string            `json:"category"`
	DataType   string            `json:"data_type"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	Source     string            `json:"source,omitempty"`
	RecordedAt time.Time         `json:"recorded_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r IngestDataPointRequest) toInput() domain.IngestInput {
	return domain.IngestInput{
		Category:   r.Category,
		DataType:   r.DataType,
		Value:      r.Value,
		Unit:       r.Unit,
		Source:     r.Source,
		RecordedAt: r.RecordedAt,
		Metadata:   r.Metadata,
	}
}

// IngestBatchRequest is the payload for POST /v1/baselines/datapoints/batch.
type IngestBatchRequest struct {
	UserID string                   `json:"user_id"`
	Items  []IngestDataPointRequest `json:"items"`
}

// BatchFailureView reports one rejected batch item.
type BatchFailureView struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestBatchResponse is the explicit per-item outcome of a batch ingestion.
type IngestBatchResponse struct {
	Accepted []DataPointView    `json:"accepted"`
	Rejected []BatchFailureView `json:"rejected"`
}

// DataPointView exposes one stored sample.
type DataPointView struct {
	DataPointID string            `json:"data_point_id"`
	BaselineID  string            `json:"baseline_id"`
	UserID      string            `json:"user_id"`
	Category    string            `json:"category"`
	DataType    string            `json:"data_type"`
	Value       float64           `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	Source      string            `json:"source"`
	RecordedAt  time.Time         `json:"recorded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Outlier     bool              `json:"outlier"`
}

// ListDataPointsResponse packages list results.
type ListDataPointsResponse struct {
	Items      []DataPointView `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ReadinessView reports the four criteria plus the derived score.
type ReadinessView struct {
	Criteria domain.ReadinessCriteria `json:"criteria"`
	Score    int                      `json:"score"`
	Ready    bool                     `json:"ready"`
}

// NotReadyResponse is returned when Stop is called before the baseline meets
// the readiness criteria.
type NotReadyResponse struct {
	Type      string        `json:"type"`
	Detail    string        `json:"detail"`
	Readiness ReadinessView `json:"readiness"`
}

// CategoryProgressView describes per-category collection progress.
type CategoryProgressView struct {
	Count      int     `json:"count"`
	Completion float64 `json:"completion"`
}

// ProgressView is the collection progress snapshot for one owner.
type ProgressView struct {
	Active         bool                            `json:"active"`
	BaselineID     string                          `json:"baseline_id,omitempty"`
	Status         string                          `json:"status,omitempty"`
	StartedAt      *time.Time                      `json:"started_at,omitempty"`
	TargetDays     int                             `json:"target_days,omitempty"`
	ElapsedDays    float64                         `json:"elapsed_days"`
	RemainingDays  float64                         `json:"remaining_days"`
	DataPointCount int                             `json:"data_point_count"`
	Readiness      ReadinessView                   `json:"readiness"`
	Categories     map[string]CategoryProgressView `json:"categories,omitempty"`
}

// BaselineView exposes a full baseline, including the computed metrics once
// the lifecycle completes.
type BaselineView struct {
	BaselineID          string                               `json:"baseline_id"`
	TenantID            string                               `json:"tenant_id"`
	UserID              string                               `json:"user_id"`
	Status              string                               `json:"status"`
	StartedAt           time.Time                            `json:"started_at"`
	TargetDays          int                                  `json:"target_days"`
	EndedAt             *time.Time                           `json:"ended_at,omitempty"`
	ActualDays          *float64                             `json:"actual_days,omitempty"`
	DataPointCount      int                                  `json:"data_point_count"`
	Metrics             map[string]domain.CategoryMetrics    `json:"metrics,omitempty"`
	ConfidenceIntervals map[string]domain.ConfidenceInterval `json:"confidence_intervals,omitempty"`
	NoiseFloors         map[string]float64                   `json:"noise_floors,omitempty"`
	ReadinessScore      int                                  `json:"readiness_score"`
	ReadinessCriteria   domain.ReadinessCriteria             `json:"readiness_criteria"`
	FailureReason       *string                              `json:"failure_reason,omitempty"`
	CreatedAt           time.Time                            `json:"created_at"`
	UpdatedAt           time.Time                            `json:"updated_at"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toReadinessView(r domain.Readiness) ReadinessView {
	return ReadinessView{Criteria: r.Criteria, Score: r.Score, Ready: r.Ready()}
}

func toDataPointView(p domain.DataPoint) DataPointView {
	return DataPointView{
		DataPointID: p.ID,
		BaselineID:  p.BaselineID,
		UserID:      p.UserID,
		Category:    string(p.Category),
		DataType:    p.DataType,
		Value:       p.Value,
		Unit:        p.Unit,
		Source:      p.Source,
		RecordedAt:  p.RecordedAt,
		Metadata:    p.Metadata,
		Outlier:     p.Outlier,
	}
}

func toProgressView(p domain.Progress) ProgressView {
	view := ProgressView{
		Active:         p.Active,
		ElapsedDays:    p.ElapsedDays,
		RemainingDays:  p.RemainingDays,
		DataPointCount: p.DataPointCount,
		Readiness:      toReadinessView(p.Readiness),
	}
	if !p.Active {
		return view
	}

	started := p.StartedAt
	view.BaselineID = p.BaselineID
	view.Status = string(p.Status)
	view.StartedAt = &started
	view.TargetDays = p.TargetDays
	view.Categories = make(map[string]CategoryProgressView, len(p.Categories))
	for category, progress := range p.Categories {
		view.Categories[string(category)] = CategoryProgressView{
			Count:      progress.Count,
			Completion: progress.Completion,
		}
	}
	return view
}

func toBaselineView(b domain.Baseline) BaselineView {
	view := BaselineView{
		BaselineID:        b.ID,
		TenantID:          b.TenantID,
		UserID:            b.UserID,
		Status:            string(b.Status),
		StartedAt:         b.StartedAt,
		TargetDays:        b.TargetDays,
		EndedAt:           b.EndedAt,
		ActualDays:        b.ActualDays,
		DataPointCount:    b.DataPointCount,
		ReadinessScore:    b.ReadinessScore,
		ReadinessCriteria: b.ReadinessCriteria,
		FailureReason:     b.FailureReason,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
	if len(b.Metrics) > 0 {
		view.Metrics = make(map[string]domain.CategoryMetrics, len(b.Metrics))
		for category, metrics := range b.Metrics {
			view.Metrics[string(category)] = metrics
		}
	}
	if len(b.ConfidenceIntervals) > 0 {
		view.ConfidenceIntervals = make(map[string]domain.ConfidenceInterval, len(b.ConfidenceIntervals))
		for category, interval := range b.ConfidenceIntervals {
			view.ConfidenceIntervals[string(category)] = interval
		}
	}
	if len(b.NoiseFloors) > 0 {
		view.NoiseFloors = make(map[string]float64, len(b.NoiseFloors))
		for category, floor := range b.NoiseFloors {
			view.NoiseFloors[string(category)] = floor
		}
	}
	return view
}
