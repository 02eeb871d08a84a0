package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ============================================================
// 线索
// ============================================================

// LeadStatus 线索在销售流程中的阶段
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusResearching  LeadStatus = "researching"
	LeadStatusInSequence   LeadStatus = "in_sequence"
	LeadStatusReplied      LeadStatus = "replied"
	LeadStatusConverted    LeadStatus = "converted"
	LeadStatusDisqualified LeadStatus = "disqualified"
)

// LeadStatuses 全部合法状态
func LeadStatuses() []LeadStatus {
	return []LeadStatus{
		LeadStatusNew,
		LeadStatusResearching,
		LeadStatusInSequence,
		LeadStatusReplied,
		LeadStatusConverted,
		LeadStatusDisqualified,
	}
}

// Valid 状态是否合法
func (s LeadStatus) Valid() bool {
	for _, v := range LeadStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Lead 销售线索
type Lead struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	FirstName   string     `gorm:"size:100;not null" json:"first_name"`
	LastName    string     `gorm:"size:100" json:"last_name"`
	Email       string     `gorm:"size:255;not null;uniqueIndex:idx_leads_email" json:"email"`
	Company     string     `gorm:"size:255;index:idx_leads_company" json:"company"`
	Title       string     `gorm:"size:255" json:"title"`
	LinkedinURL string     `gorm:"column:linkedin_url;size:500" json:"linkedin_url"`
	Source      string     `gorm:"size:50" json:"source"`
	Status      LeadStatus `gorm:"size:30;not null;default:new;index:idx_leads_status" json:"status"`
	Notes       string     `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Lead) TableName() string {
	return "leads"
}

// BeforeCreate 生成主键并补全默认状态
func (l *Lead) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	return nil
}

// ============================================================
// 调研与草稿
// ============================================================

// Research 针对某条线索的调研结果
type Research struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	LeadID    string    `gorm:"size:36;not null;index:idx_research_lead" json:"lead_id"`
	Summary   string    `gorm:"type:text" json:"summary"`
	Findings  string    `gorm:"type:text" json:"findings"` // JSON 文本
	Sources   string    `gorm:"type:text" json:"sources"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lead *Lead `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}

func (Research) TableName() string {
	return "research"
}

func (r *Research) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// DraftStatus 草稿状态
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusRejected DraftStatus = "rejected"
	DraftStatusSent     DraftStatus = "sent"
)

// Draft 待审核的外联邮件草稿
type Draft struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	LeadID     string      `gorm:"size:36;not null;index:idx_drafts_lead" json:"lead_id"`
	TemplateID *string     `gorm:"size:36" json:"template_id,omitempty"`
	Subject    string      `gorm:"size:500;not null" json:"subject"`
	Body       string      `gorm:"type:text;not null" json:"body"`
	Step       int         `gorm:"default:1" json:"step"` // 序列中的第几封
	Status     DraftStatus `gorm:"size:30;not null;default:pending;index:idx_drafts_status" json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`

	Lead *Lead `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}

func (Draft) TableName() string {
	return "drafts"
}

func (d *Draft) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DraftStatusPending
	}
	return nil
}

// ============================================================
// 模板、邮件与回调
// ============================================================

// Template 邮件模板
type Template struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex:idx_templates_name" json:"name"`
	Subject   string    `gorm:"size:500;not null" json:"subject"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

func (t *Template) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Email 已发送的邮件
type Email struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	LeadID            string     `gorm:"size:36;not null;index:idx_emails_lead" json:"lead_id"`
	DraftID           *string    `gorm:"size:36" json:"draft_id,omitempty"`
	Subject           string     `gorm:"size:500;not null" json:"subject"`
	Body              string     `gorm:"type:text;not null" json:"body"`
	ProviderMessageID string     `gorm:"size:255;index:idx_emails_provider_message" json:"provider_message_id"`
	Status            string     `gorm:"size:30;not null;default:queued" json:"status"` // queued/sent/delivered/opened/bounced
	SentAt            *time.Time `json:"sent_at"`
	OpenedAt          *time.Time `json:"opened_at"`
	RepliedAt         *time.Time `json:"replied_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// WebhookEvent 邮件服务商推送的原始事件
type WebhookEvent struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Provider   string    `gorm:"size:50;not null" json:"provider"`
	EventType  string    `gorm:"size:100;not null;index:idx_webhook_events_type" json:"event_type"`
	Payload    string    `gorm:"type:text" json:"payload"`
	Processed  bool      `gorm:"default:false;index:idx_webhook_events_processed" json:"processed"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (w *WebhookEvent) BeforeCreate(*gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.ReceivedAt.IsZero() {
		w.ReceivedAt = time.Now().UTC()
	}
	return nil
}
