package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jansetu-be/apperrors"
	"jansetu-be/models"
	"jansetu-be/storage"
)

const (
	// DefaultPageSize applies when the caller sends no usable limit.
	DefaultPageSize = 10
	// MaxPageSize caps a single page; the export path relies on this bound.
	MaxPageSize = 1000
)

// IssueService implements the intake, query, and aggregation pipelines over
// the issues table.
type IssueService struct {
	DB    *gorm.DB
	Media *storage.MediaStore
}

// NewIssueService wires the service to its store and media directory.
func NewIssueService(db *gorm.DB, media *storage.MediaStore) *IssueService {
	return &IssueService{DB: db, Media: media}
}

// CreateIssueInput carries one submission. Location and ContactInfo hold raw
// JSON text (or empty); files arrive as the untouched multipart groups.
type CreateIssueInput struct {
	Category    string
	Description string
	Priority    string
	ReportedBy  string
	Location    string
	ContactInfo string
	Images      []*multipart.FileHeader
	AudioNote   []*multipart.FileHeader
}

// Create validates a submission, persists its media, and stores the record.
// All validation runs before the first byte reaches disk or the database, so
// a rejected submission leaves nothing behind in the store.
func (s *IssueService) Create(ctx context.Context, in CreateIssueInput) (*models.Issue, error) {
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, apperrors.NewValidation("category", "category is required")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, apperrors.NewValidation("description", "description is required")
	}
	if in.Priority != "" && !models.IssuePriority(in.Priority).Valid() {
		return nil, apperrors.NewValidation("priority", "priority must be one of 'low' | 'medium' | 'high'")
	}

	location, err := ParseJSONField(in.Location, "location")
	if err != nil {
		return nil, err
	}
	contactInfo, err := ParseJSONField(in.ContactInfo, "contactInfo")
	if err != nil {
		return nil, err
	}

	if err := s.Media.CheckImages(in.Images); err != nil {
		return nil, err
	}
	if err := s.Media.CheckAudio(in.AudioNote); err != nil {
		return nil, err
	}

	imageMetas, err := s.Media.SaveImages(in.Images)
	if err != nil {
		return nil, err
	}
	var audioURL *string
	if len(in.AudioNote) == 1 {
		meta, err := s.Media.Save(in.AudioNote[0])
		if err != nil {
			return nil, err
		}
		audioURL = &meta.URL
	}

	issue := &models.Issue{
		Category:    category,
		Description: description,
		Priority:    models.IssuePriority(in.Priority),
		Location:    location,
		ContactInfo: contactInfo,
		ReportedBy:  optional(in.ReportedBy),
		AudioNote:   audioURL,
	}
	if len(imageMetas) > 0 {
		raw, err := json.Marshal(imageMetas)
		if err != nil {
			return nil, err
		}
		issue.Images = datatypes.JSON(raw)
	}

	if err := s.DB.WithContext(ctx).Create(issue).Error; err != nil {
		return nil, err
	}
	return issue, nil
}

// UpdateIssueInput is a partial update: nil pointers leave the stored field
// untouched. The nullable text fields carry a third state, a present but
// invalid NullString, which clears the stored value. New images append to
// the list; a new audio note replaces the stored URL.
type UpdateIssueInput struct {
	Status      *string
	Priority    *string
	AssignedTo  *sql.NullString
	Category    *string
	Description *string
	ReportedBy  *sql.NullString
	Location    *string
	ContactInfo *string
	Images      []*multipart.FileHeader
	AudioNote   []*multipart.FileHeader
}

// Update applies a field-level partial update. Every validation runs before
// the first mutation of the loaded record.
func (s *IssueService) Update(ctx context.Context, id string, in UpdateIssueInput) (*models.Issue, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Status != nil && !models.IssueStatus(*in.Status).Valid() {
		return nil, apperrors.NewValidation("status", "status must be one of 'pending' | 'in_progress' | 'resolved' | 'rejected'")
	}
	if in.Priority != nil && !models.IssuePriority(*in.Priority).Valid() {
		return nil, apperrors.NewValidation("priority", "priority must be one of 'low' | 'medium' | 'high'")
	}

	var location, contactInfo datatypes.JSON
	if in.Location != nil {
		if location, err = ParseJSONField(*in.Location, "location"); err != nil {
			return nil, err
		}
	}
	if in.ContactInfo != nil {
		if contactInfo, err = ParseJSONField(*in.ContactInfo, "contactInfo"); err != nil {
			return nil, err
		}
	}

	if err := s.Media.CheckImages(in.Images); err != nil {
		return nil, err
	}
	if err := s.Media.CheckAudio(in.AudioNote); err != nil {
		return nil, err
	}

	if in.Status != nil {
		issue.Status = models.IssueStatus(*in.Status)
	}
	if in.Priority != nil {
		issue.Priority = models.IssuePriority(*in.Priority)
	}
	if in.Category != nil {
		issue.Category = *in.Category
	}
	if in.Description != nil {
		issue.Description = *in.Description
	}
	if in.ReportedBy != nil {
		issue.ReportedBy = nullableValue(in.ReportedBy)
	}
	if in.AssignedTo != nil {
		issue.AssignedTo = nullableValue(in.AssignedTo)
	}
	if in.Location != nil {
		issue.Location = location
	}
	if in.ContactInfo != nil {
		issue.ContactInfo = contactInfo
	}

	if len(in.Images) > 0 {
		metas, err := s.Media.SaveImages(in.Images)
		if err != nil {
			return nil, err
		}
		if err := issue.AppendImages(metas); err != nil {
			return nil, err
		}
	}
	if len(in.AudioNote) == 1 {
		meta, err := s.Media.Save(in.AudioNote[0])
		if err != nil {
			return nil, err
		}
		issue.AudioNote = &meta.URL
	}

	if err := s.DB.WithContext(ctx).Save(issue).Error; err != nil {
		return nil, err
	}
	return issue, nil
}

// Get loads one issue by its record id.
func (s *IssueService) Get(ctx context.Context, id string) (*models.Issue, error) {
	var issue models.Issue
	err := s.DB.WithContext(ctx).First(&issue, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// Delete permanently removes an issue. Media files on disk are left as-is.
func (s *IssueService) Delete(ctx context.Context, id string) error {
	result := s.DB.WithContext(ctx).Delete(&models.Issue{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListParams translate the list query string. Zero values fall back to the
// defaults; out-of-range values are clamped rather than rejected.
type ListParams struct {
	Page     int
	Limit    int
	Status   string
	Category string
	Priority string
	Q        string
	Sort     string
	Order    string
}

// sortColumns whitelists the sortable fields, mapping the API names to
// their columns. Anything else falls back to created_at.
var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"status":     "status",
	"priority":   "priority",
	"category":   "category",
	"trackingId": "tracking_id",
}

// Normalize clamps out-of-range pagination values. Safe to call more than
// once.
func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
}

// List returns one page of matching issues plus the total match count.
// Equality filters and the free-text term combine with AND; the term matches
// case-insensitively against description, category, and tracking id.
func (s *IssueService) List(ctx context.Context, p ListParams) ([]models.Issue, int64, error) {
	p.Normalize()

	filter := func(db *gorm.DB) *gorm.DB {
		if p.Status != "" {
			db = db.Where("status = ?", p.Status)
		}
		if p.Category != "" {
			db = db.Where("category = ?", p.Category)
		}
		if p.Priority != "" {
			db = db.Where("priority = ?", p.Priority)
		}
		if p.Q != "" {
			term := "%" + strings.ToLower(p.Q) + "%"
			db = db.Where("lower(description) LIKE ? OR lower(category) LIKE ? OR lower(tracking_id) LIKE ?",
				term, term, term)
		}
		return db
	}

	var total int64
	if err := filter(s.DB.WithContext(ctx).Model(&models.Issue{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[p.Sort]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		direction = "ASC"
	}

	issues := make([]models.Issue, 0, p.Limit)
	err := filter(s.DB.WithContext(ctx)).
		Order(column + " " + direction).
		Order("id ASC").
		Offset((p.Page - 1) * p.Limit).
		Limit(p.Limit).
		Find(&issues).Error
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

// StatusCount is one status bucket of the dashboard summary.
type StatusCount struct {
	Status models.IssueStatus `json:"status"`
	Count  int64              `json:"count"`
}

// CategoryCount is one category bucket of the dashboard summary.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// IssueStats is the global grouped-count summary.
type IssueStats struct {
	ByStatus   []StatusCount   `json:"byStatus"`
	ByCategory []CategoryCount `json:"byCategory"`
}

// Stats computes unfiltered grouped counts by status and by category.
func (s *IssueService) Stats(ctx context.Context) (*IssueStats, error) {
	stats := &IssueStats{
		ByStatus:   make([]StatusCount, 0),
		ByCategory: make([]CategoryCount, 0),
	}

	err := s.DB.WithContext(ctx).Model(&models.Issue{}).
		Select("status, count(*) as count").
		Group("status").
		Order("status").
		Scan(&stats.ByStatus).Error
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Model(&models.Issue{}).
		Select("category, count(*) as count").
		Group("category").
		Order("category").
		Scan(&stats.ByCategory).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// ParseJSONField normalizes an open-shaped field (location, contactInfo)
// sent either as structured JSON or as a JSON-encoded string. Empty and
// null values clear the field; a quoted string whose content is not itself
// JSON is kept as a string value; anything else unparsable is a validation
// error naming the field.
func ParseJSONField(value, field string) (datatypes.JSON, error) {
	v := strings.TrimSpace(value)
	if v == "" || v == "null" {
		return nil, nil
	}
	var quoted string
	if err := json.Unmarshal([]byte(v), &quoted); err == nil {
		inner := strings.TrimSpace(quoted)
		if inner == "" || inner == "null" {
			return nil, nil
		}
		if json.Valid([]byte(inner)) {
			return datatypes.JSON(inner), nil
		}
		return datatypes.JSON(v), nil
	}
	if !json.Valid([]byte(v)) {
		return nil, apperrors.NewValidation(field, "Invalid JSON for field '%s'", field)
	}
	return datatypes.JSON(v), nil
}

func nullableValue(ns *sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
