package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IssueStatus enum
type IssueStatus string

const (
	StatusPending    IssueStatus = "pending"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusRejected   IssueStatus = "rejected"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// IssuePriority enum
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
)

func (p IssuePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// FileMeta describes one stored upload, as recorded in the images column
// and mirrored by the /uploads static route.
type FileMeta struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
}

// Issue represents a civic complaint submitted by a citizen
type Issue struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	TrackingID  string         `gorm:"column:tracking_id;uniqueIndex;not null" json:"trackingId"`
	Category    string         `gorm:"not null;index" json:"category"`
	Description string         `gorm:"type:text;not null" json:"description"`
	Status      IssueStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	Priority    IssuePriority  `gorm:"type:varchar(10);not null;index" json:"priority"`
	Location    datatypes.JSON `gorm:"type:jsonb" json:"location"`
	Images      datatypes.JSON `gorm:"type:jsonb;not null" json:"images"`
	AudioNote   *string        `gorm:"column:audio_note" json:"audioNote"`
	ReportedBy  *string        `gorm:"column:reported_by" json:"reportedBy"`
	ContactInfo datatypes.JSON `gorm:"type:jsonb" json:"contactInfo"`
	AssignedTo  *string        `gorm:"column:assigned_to" json:"assignedTo"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (Issue) TableName() string {
	return "issues"
}

// BeforeCreate fills the generated identifiers and column defaults so the
// record is complete regardless of the underlying database.
func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.TrackingID == "" {
		i.TrackingID = NewTrackingID()
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	if i.Priority == "" {
		i.Priority = PriorityMedium
	}
	if i.Images == nil {
		i.Images = datatypes.JSON("[]")
	}
	return nil
}

// NewTrackingID returns a human-shareable complaint id: "JS-" followed by
// the first uuid segment, uppercased.
func NewTrackingID() string {
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return "JS-" + strings.ToUpper(short)
}

// ImageList decodes the images column.
func (i *Issue) ImageList() ([]FileMeta, error) {
	if len(i.Images) == 0 {
		return nil, nil
	}
	var list []FileMeta
	if err := json.Unmarshal(i.Images, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AppendImages adds new entries after the existing ones. Entries already
// stored are never removed here.
func (i *Issue) AppendImages(more []FileMeta) error {
	if len(more) == 0 {
		return nil
	}
	list, err := i.ImageList()
	if err != nil {
		return err
	}
	list = append(list, more...)
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	i.Images = datatypes.JSON(raw)
	return nil
}
