package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

// documentRecord is the table row for a document.
type documentRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID   string    `gorm:"type:varchar(128);not null;index:idx_documents_owner_created,priority:1"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Content   string    `gorm:"type:text;not null"`
	Analysis  string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_documents_owner_created,priority:2,sort:desc"`
}

func (documentRecord) TableName() string {
	return "journal_documents"
}

func toRecord(doc *model.UploadedDocument) *documentRecord {
	return &documentRecord{
		ID:        uuid.New(),
		OwnerID:   doc.OwnerID,
		Name:      doc.Name,
		Content:   doc.Content,
		Analysis:  doc.Analysis,
		CreatedAt: time.Now().UTC(),
	}
}

func (r *documentRecord) toModel() model.UploadedDocument {
	return model.UploadedDocument{
		ID:        r.ID.String(),
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Content:   r.Content,
		Analysis:  r.Analysis,
		CreatedAt: r.CreatedAt,
		Persisted: true,
	}
}

// OpenPostgres opens a pooled connection and migrates the documents and
// chats tables.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&documentRecord{}, &chatRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	return db, nil
}

// PostgresDocumentRepository stores documents with GORM.
type PostgresDocumentRepository struct {
	db *gorm.DB
}

// NewPostgresDocumentRepository creates a repository on db.
func NewPostgresDocumentRepository(db *gorm.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

func (r *PostgresDocumentRepository) Insert(ctx context.Context, doc *model.UploadedDocument) error {
	rec := toRecord(doc)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	*doc = rec.toModel()
	return nil
}

func (r *PostgresDocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.UploadedDocument, error) {
	var records []documentRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	docs := make([]model.UploadedDocument, len(records))
	for i := range records {
		docs[i] = records[i].toModel()
	}
	return docs, nil
}
