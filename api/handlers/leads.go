package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/salesflow/internal/database"
	"github.com/BaSui01/salesflow/internal/models"
	"github.com/BaSui01/salesflow/types"
)

// =============================================================================
// 👤 线索 Handler
// =============================================================================

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// LeadHandler 线索 CRUD。每个请求在独立的会话中执行：
// 成功提交，失败回滚。
type LeadHandler struct {
	scoper database.Scoper
	logger *zap.Logger
}

// NewLeadHandler 创建线索处理器
func NewLeadHandler(scoper database.Scoper, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		scoper: scoper,
		logger: logger.With(zap.String("handler", "leads")),
	}
}

// LeadRoutes 返回路由组注册函数，路由组只拿到会话能力
func LeadRoutes(logger *zap.Logger) func(r chi.Router, scoper database.Scoper) {
	return func(r chi.Router, scoper database.Scoper) {
		NewLeadHandler(scoper, logger).Routes(r)
	}
}

// Routes 挂载线索路由
func (h *LeadHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Route("/{leadID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Patch("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
	})
}

// =============================================================================
// 📦 请求与响应
// =============================================================================

// CreateLeadRequest 创建线索请求
type CreateLeadRequest struct {
	FirstName   string            `json:"first_name" validate:"required,max=100"`
	LastName    string            `json:"last_name" validate:"max=100"`
	Email       string            `json:"email" validate:"required,email,max=255"`
	Company     string            `json:"company" validate:"max=255"`
	Title       string            `json:"title" validate:"max=255"`
	LinkedinURL string            `json:"linkedin_url" validate:"omitempty,url,max=500"`
	Source      string            `json:"source" validate:"max=50"`
	Status      models.LeadStatus `json:"status" validate:"omitempty,lead_status"`
	Notes       string            `json:"notes"`
}

// Bind 实现 render.Binder
func (req *CreateLeadRequest) Bind(*http.Request) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	return nil
}

// UpdateLeadRequest 部分更新线索，未提供的字段保持不变
type UpdateLeadRequest struct {
	FirstName   *string            `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName    *string            `json:"last_name" validate:"omitempty,max=100"`
	Company     *string            `json:"company" validate:"omitempty,max=255"`
	Title       *string            `json:"title" validate:"omitempty,max=255"`
	LinkedinURL *string            `json:"linkedin_url" validate:"omitempty,url,max=500"`
	Status      *models.LeadStatus `json:"status" validate:"omitempty,lead_status"`
	Notes       *string            `json:"notes"`
}

// Bind 实现 render.Binder
func (req *UpdateLeadRequest) Bind(*http.Request) error {
	return nil
}

func (req *UpdateLeadRequest) changes() map[string]any {
	changes := make(map[string]any)
	if req.FirstName != nil {
		changes["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		changes["last_name"] = *req.LastName
	}
	if req.Company != nil {
		changes["company"] = *req.Company
	}
	if req.Title != nil {
		changes["title"] = *req.Title
	}
	if req.LinkedinURL != nil {
		changes["linkedin_url"] = *req.LinkedinURL
	}
	if req.Status != nil {
		changes["status"] = *req.Status
	}
	if req.Notes != nil {
		changes["notes"] = *req.Notes
	}
	return changes
}

// LeadList 分页结果
type LeadList struct {
	Items  []models.Lead `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleList GET /api/v1/leads?status=&company=&limit=&offset=
func (h *LeadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"), defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be between 1 and 200", h.logger)
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "offset must not be negative", h.logger)
		return
	}
	status := models.LeadStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "unknown lead status", h.logger)
		return
	}
	company := q.Get("company")

	list, err := database.Within(r.Context(), h.scoper, func(ctx context.Context, sess database.Session) (*LeadList, error) {
		query := sess.DB().Model(&models.Lead{})
		if status != "" {
			query = query.Where("status = ?", status)
		}
		if company != "" {
			query = query.Where("company = ?", company)
		}

		out := &LeadList{Items: []models.Lead{}, Limit: limit, Offset: offset}
		if err := query.Count(&out.Total).Error; err != nil {
			return nil, err
		}
		if err := query.Order("created_at DESC").Order("id").Limit(limit).Offset(offset).Find(&out.Items).Error; err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, list)
}

// HandleCreate POST /api/v1/leads
func (h *LeadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := BindRequest(r, &req); err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	lead := &models.Lead{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Company:     req.Company,
		Title:       req.Title,
		LinkedinURL: req.LinkedinURL,
		Source:      req.Source,
		Status:      req.Status,
		Notes:       req.Notes,
	}

	err := h.scoper.WithSession(r.Context(), func(ctx context.Context, sess database.Session) error {
		return sess.DB().Create(lead).Error
	})
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	h.logger.Info("lead created", zap.String("lead_id", lead.ID))
	WriteSuccessStatus(w, http.StatusCreated, lead)
}

// HandleGet GET /api/v1/leads/{leadID}
func (h *LeadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")

	lead, err := database.Within(r.Context(), h.scoper, func(ctx context.Context, sess database.Session) (*models.Lead, error) {
		var lead models.Lead
		if err := sess.DB().First(&lead, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &lead, nil
	})
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, lead)
}

// HandleUpdate PATCH /api/v1/leads/{leadID}
func (h *LeadHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")

	var req UpdateLeadRequest
	if err := BindRequest(r, &req); err != nil {
		WriteFailure(w, err, h.logger)
		return
	}
	changes := req.changes()
	if len(changes) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "no fields to update", h.logger)
		return
	}

	lead, err := database.Within(r.Context(), h.scoper, func(ctx context.Context, sess database.Session) (*models.Lead, error) {
		var lead models.Lead
		if err := sess.DB().First(&lead, "id = ?", id).Error; err != nil {
			return nil, err
		}
		if err := sess.DB().Model(&lead).Updates(changes).Error; err != nil {
			return nil, err
		}
		if err := sess.DB().First(&lead, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &lead, nil
	})
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, lead)
}

// HandleDelete DELETE /api/v1/leads/{leadID}
func (h *LeadHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")

	err := h.scoper.WithSession(r.Context(), func(ctx context.Context, sess database.Session) error {
		res := sess.DB().Delete(&models.Lead{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.NewError(types.ErrNotFound, "lead not found")
		}
		return nil
	})
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
