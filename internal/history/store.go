package history

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
)

// Ride is one saved workout.
type Ride struct {
	ID              uint      `gorm:"primaryKey"`
	SessionID       string    `gorm:"index"`
	FilePath        string    `gorm:"uniqueIndex"`
	StartedAt       time.Time `gorm:"index"`
	DurationSeconds int
	PausedSeconds   int
	DistanceKm      float64
	AvgPower        int
	MaxPower        int
	AvgHeartRate    int
	MaxHeartRate    int
	AvgCadence      int
	SampleCount     int
	CreatedAt       time.Time
}

func rideFromSummary(s session.WorkoutSummary) Ride {
	return Ride{
		SessionID:       s.SessionID,
		FilePath:        s.FilePath,
		StartedAt:       s.StartedAt,
		DurationSeconds: s.DurationSeconds,
		PausedSeconds:   s.PausedSeconds,
		DistanceKm:      s.DistanceKm,
		AvgPower:        s.AvgPower,
		MaxPower:        s.MaxPower,
		AvgHeartRate:    s.AvgHeartRate,
		MaxHeartRate:    s.MaxHeartRate,
		AvgCadence:      s.AvgCadence,
		SampleCount:     s.SampleCount,
	}
}

// Store keeps the ride log in SQLite.
type Store struct {
	db     *gorm.DB
	logger *log.Logger
}

func OpenStore(path string, l *log.Logger) (*Store, error) {
	if l == nil {
		panic("Store: logger cannot be nil")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(l, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&Ride{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db, logger: l}, nil
}

// Save records a ride. Saving the same file twice updates the existing row.
func (s *Store) Save(summary session.WorkoutSummary) (Ride, error) {
	if summary.FilePath == "" {
		return Ride{}, errors.New("ride has no file path")
	}
	ride := rideFromSummary(summary)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		UpdateAll: true,
	}).Create(&ride).Error
	if err != nil {
		return Ride{}, fmt.Errorf("save ride: %w", err)
	}
	return ride, nil
}

// Recent returns up to limit rides, newest first.
func (s *Store) Recent(limit int) ([]Ride, error) {
	var rides []Ride
	result := s.db.Order("started_at desc").Limit(limit).Find(&rides)
	return rides, result.Error
}

func (s *Store) Count() (int64, error) {
	var count int64
	err := s.db.Model(&Ride{}).Count(&count).Error
	return count, err
}

// TotalDistanceKm sums the distance of every ride.
func (s *Store) TotalDistanceKm() (float64, error) {
	// SUM over an empty table is NULL
	var total *float64
	if err := s.db.Model(&Ride{}).Select("sum(distance_km)").Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (s *Store) hasFile(path string) (bool, error) {
	var count int64
	err := s.db.Model(&Ride{}).Where("file_path = ?", path).Count(&count).Error
	return count > 0, err
}

// ImportDir adds every FIT file under dir that is not in the store yet.
// Files that fail to decode are logged and skipped.
func (s *Store) ImportDir(dir string) (int, error) {
	imported := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".fit") {
			return nil
		}
		known, err := s.hasFile(path)
		if err != nil {
			return err
		}
		if known {
			return nil
		}
		summary, err := ReadFITSummary(path)
		if err != nil {
			s.logger.Printf("Store: skipping %s: %v", filepath.Base(path), err)
			return nil
		}
		summary.SessionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
		if _, err := s.Save(summary); err != nil {
			return err
		}
		imported++
		return nil
	})
	if err != nil {
		return imported, fmt.Errorf("import %s: %w", dir, err)
	}
	if imported > 0 {
		s.logger.Printf("Store: imported %d rides from %s", imported, dir)
	}
	return imported, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
