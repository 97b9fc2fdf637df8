// Package staging holds the per-run index of study-level query results.
//
// A Store is an in-memory SQLite database (pure Go driver) created fresh for
// every query run. Rows are appended per server; ownership of a study is
// decided elsewhere, so the same StudyInstanceUID may appear more than once.
package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rescale/rescale-qr/internal/models"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const loadBatchSize = 200

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("staging store is closed")

// StudyRow is one study-level result as reported by one server.
type StudyRow struct {
	ID                uint   `gorm:"primaryKey"`
	Server            string `gorm:"index;not null"`
	StudyInstanceUID  string `gorm:"column:study_instance_uid;index;not null"`
	PatientID         string
	PatientName       string
	StudyDate         string
	StudyDescription  string
	AccessionNumber   string
	Modalities        string // Backslash-separated, as in DICOM multi-valued strings
	NumberOfInstances int
	CreatedAt         time.Time
}

// TableName pins the table name.
func (StudyRow) TableName() string { return "studies" }

func rowFromStudy(server string, s models.Study) StudyRow {
	return StudyRow{
		Server:            server,
		StudyInstanceUID:  s.StudyInstanceUID,
		PatientID:         s.PatientID,
		PatientName:       s.PatientName,
		StudyDate:         s.StudyDate,
		StudyDescription:  s.StudyDescription,
		AccessionNumber:   s.AccessionNumber,
		Modalities:        strings.Join(s.ModalitiesInStudy, `\`),
		NumberOfInstances: s.NumberOfInstances,
	}
}

func (r StudyRow) toStudy() models.Study {
	var modalities []string
	if r.Modalities != "" {
		modalities = strings.Split(r.Modalities, `\`)
	}
	return models.Study{
		StudyInstanceUID:  r.StudyInstanceUID,
		PatientID:         r.PatientID,
		PatientName:       r.PatientName,
		StudyDate:         r.StudyDate,
		StudyDescription:  r.StudyDescription,
		AccessionNumber:   r.AccessionNumber,
		ModalitiesInStudy: modalities,
		NumberOfInstances: r.NumberOfInstances,
		Server:            r.Server,
	}
}

// Store is a staging index backed by SQLite through gorm.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	sqlDB  *sql.DB
	closed bool
}

// Open creates a store on dsn. An empty dsn means MemoryDSN.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open staging database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access staging database: %w", err)
	}
	// Every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&StudyRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create staging schema: %w", err)
	}

	return &Store{db: db, sqlDB: sqlDB}, nil
}

func (s *Store) handle(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db.WithContext(ctx), nil
}

// Load appends the studies reported by server in a single transaction.
func (s *Store) Load(ctx context.Context, server string, studies []models.Study) error {
	if len(studies) == 0 {
		return nil
	}
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	rows := make([]StudyRow, 0, len(studies))
	for _, st := range studies {
		rows = append(rows, rowFromStudy(server, st))
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, loadBatchSize).Error
	}); err != nil {
		return fmt.Errorf("failed to load %d studies from %s: %w", len(studies), server, err)
	}
	return nil
}

// RowCount returns the number of rows loaded so far.
func (s *Store) RowCount() (int64, error) {
	db, err := s.handle(context.Background())
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&StudyRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count staging rows: %w", err)
	}
	return n, nil
}

// Studies returns every row in load order.
func (s *Store) Studies(ctx context.Context) ([]models.Study, error) {
	return s.find(ctx, "")
}

// StudiesByServer returns the rows loaded for server in load order.
func (s *Store) StudiesByServer(ctx context.Context, server string) ([]models.Study, error) {
	return s.find(ctx, server)
}

func (s *Store) find(ctx context.Context, server string) ([]models.Study, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&StudyRow{}).Order("id")
	if server != "" {
		q = q.Where("server = ?", server)
	}
	var rows []StudyRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read staging rows: %w", err)
	}
	out := make([]models.Study, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toStudy())
	}
	return out, nil
}

// Close releases the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sqlDB.Close()
}
