package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// RecordType distinguishes the two kinds of tracked records an
// annotation can reference.
type RecordType string

const (
	RecordBug      RecordType = "bug"
	RecordTestCase RecordType = "testcase"
)

// Screenshot is the image an annotation set is attached to. The engine
// only needs the fetchable URL and the original pixel dimensions; the
// upload/thumbnail pipeline is outside this service.
type Screenshot struct {
	ID        string    `json:"id" gorm:"type:char(27);primaryKey"`
	URL       string    `json:"url" gorm:"type:text;not null"`
	Width     int       `json:"width" gorm:"not null"`
	Height    int       `json:"height" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (s *Screenshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

// AnnotationLink is one row of the many-to-many association between an
// annotation and a bug or test-case record. Ownership is one-directional:
// the annotation references the record, deleting the annotation removes
// link rows but never the records themselves.
type AnnotationLink struct {
	ID           string     `json:"id" gorm:"type:char(27);primaryKey"`
	AnnotationID string     `json:"annotation_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_annotation_record"`
	RecordType   RecordType `json:"record_type" gorm:"type:varchar(20);not null;uniqueIndex:idx_annotation_record"`
	RecordID     string     `json:"record_id" gorm:"type:char(27);not null;uniqueIndex:idx_annotation_record"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (l *AnnotationLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = ksuid.New().String()
	}
	return nil
}

func (AnnotationLink) TableName() string {
	return "annotation_links"
}

// Bug is the minimal bug record the annotation engine links against.
// Full bug CRUD lives in the tracker proper.
type Bug struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	Title     string         `json:"title" gorm:"type:text;not null"`
	Status    string         `json:"status" gorm:"type:varchar(30);not null;default:'open'"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *Bug) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ksuid.New().String()
	}
	return nil
}

// TestCase is the minimal test-case record the annotation engine links
// against.
type TestCase struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	Title     string         `json:"title" gorm:"type:text;not null"`
	Status    string         `json:"status" gorm:"type:varchar(30);not null;default:'draft'"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (t *TestCase) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = ksuid.New().String()
	}
	return nil
}
