package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/agnosto/casewatch/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// CaseRow is the persisted form of a ledger slot. Stricken rows keep only
// the tombstone marker; all case fields are zeroed.
type CaseRow struct {
	Number    int `gorm:"primaryKey;autoIncrement:false"`
	Stricken  bool
	Title     string
	Author    string
	Permalink string
	Moderator string
	RemovedAt float64
	Reason    string
	MessageID string
}

func (CaseRow) TableName() string { return "cases" }

// UserCaseRow persists the user index. Derivable from the ledger but kept
// on disk so a reload does not have to rescan it.
type UserCaseRow struct {
	ID         uint   `gorm:"primaryKey"`
	Username   string `gorm:"index"`
	Position   int
	CaseNumber int
}

func (UserCaseRow) TableName() string { return "user_cases" }

type MetaRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (MetaRow) TableName() string { return "meta" }

const (
	metaSchemaVersion = "schema_version"
	metaCheckpoint    = "checkpoint"
	metaUpdater       = "updater"
)

// UpdaterMarker records an in-flight self-update so the bot can report the
// outcome on its next startup. Opaque to the case-tracking core.
type UpdaterMarker struct {
	ChannelID     string `json:"channel_id"`
	MessageID     string `json:"message_id"`
	RemoteVersion string `json:"remote_version"`
}

// DB is the durable home of the whole state unit: ledger, user index,
// checkpoint and the updater marker. Everything is flushed together.
type DB struct {
	db *gorm.DB
}

// Open connects to (or creates) the state database under dataDir.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "casewatch.db")

	if err := checkDatabaseReadable(dbPath); err != nil {
		return nil, fmt.Errorf("failed to check state database: %w", err)
	}

	logConfig := gormlogger.Config{
		LogLevel: gormlogger.Warn, // Log only warnings and errors
		Colorful: true,
	}
	gl := logger.Logger
	if gl == nil {
		gl = log.New(os.Stderr, "", log.LstdFlags)
	}

	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dbPath}, &gorm.Config{
		Logger: gormlogger.New(gl, logConfig),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&CaseRow{}, &UserCaseRow{}, &MetaRow{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := checkSchemaVersion(db); err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

// checkSchemaVersion stamps a fresh database and refuses to open one
// written by a newer casewatch.
func checkSchemaVersion(db *gorm.DB) error {
	var row MetaRow
	err := db.Where("key = ?", metaSchemaVersion).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(&MetaRow{Key: metaSchemaVersion, Value: strconv.Itoa(schemaVersion)}).Error
	}
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(row.Value)
	if err != nil {
		return fmt.Errorf("corrupt schema version %q", row.Value)
	}
	if version > schemaVersion {
		return fmt.Errorf("state database schema v%d is newer than this casewatch (v%d)", version, schemaVersion)
	}
	return nil
}

// Load rebuilds the in-memory state from disk. An empty database is not an
// error: it yields a fresh store whose checkpoint is the current wall-clock
// time, so only removals after first startup are tracked.
func (d *DB) Load() (*Store, error) {
	var caseRows []CaseRow
	if err := d.db.Order("number").Find(&caseRows).Error; err != nil {
		return nil, err
	}

	var checkpointRow MetaRow
	err := d.db.Where("key = ?", metaCheckpoint).First(&checkpointRow).Error
	if err == gorm.ErrRecordNotFound {
		// Nothing was ever flushed: start fresh from the current time.
		return New(float64(time.Now().Unix())), nil
	}
	if err != nil {
		return nil, err
	}
	checkpoint, err := strconv.ParseFloat(checkpointRow.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %q", checkpointRow.Value)
	}

	s := New(checkpoint)
	if len(caseRows) > 0 {
		s.cases = make([]*Case, caseRows[len(caseRows)-1].Number+1)
		for _, row := range caseRows {
			if row.Stricken {
				continue
			}
			s.cases[row.Number] = &Case{
				Number:    row.Number,
				Title:     row.Title,
				Author:    row.Author,
				Permalink: row.Permalink,
				Moderator: row.Moderator,
				RemovedAt: row.RemovedAt,
				Reason:    row.Reason,
				MessageID: row.MessageID,
			}
		}
	}

	var indexRows []UserCaseRow
	if err := d.db.Order("username, position").Find(&indexRows).Error; err != nil {
		return nil, err
	}
	for _, row := range indexRows {
		s.users[row.Username] = append(s.users[row.Username], row.CaseNumber)
	}

	return s, nil
}

// Save flushes the whole state unit in one transaction. Callers hold the
// mutation lock for the duration.
func (d *DB) Save(s *Store) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		rows := make([]CaseRow, 0, len(s.cases))
		for i, c := range s.cases {
			if c == nil {
				rows = append(rows, CaseRow{Number: i, Stricken: true})
				continue
			}
			rows = append(rows, CaseRow{
				Number:    c.Number,
				Title:     c.Title,
				Author:    c.Author,
				Permalink: c.Permalink,
				Moderator: c.Moderator,
				RemovedAt: c.RemovedAt,
				Reason:    c.Reason,
				MessageID: c.MessageID,
			})
		}
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("1 = 1").Delete(&UserCaseRow{}).Error; err != nil {
			return err
		}
		var indexRows []UserCaseRow
		for name, list := range s.users {
			for pos, n := range list {
				indexRows = append(indexRows, UserCaseRow{Username: name, Position: pos, CaseNumber: n})
			}
		}
		if len(indexRows) > 0 {
			if err := tx.Create(&indexRows).Error; err != nil {
				return err
			}
		}

		checkpoint := strconv.FormatFloat(s.checkpoint, 'f', -1, 64)
		return setMeta(tx, metaCheckpoint, checkpoint)
	})
}

// UpdaterMarker returns the pending self-update marker, or nil.
func (d *DB) UpdaterMarker() (*UpdaterMarker, error) {
	var row MetaRow
	err := d.db.Where("key = ?", metaUpdater).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.Value == "" {
		return nil, nil
	}
	var marker UpdaterMarker
	if err := json.Unmarshal([]byte(row.Value), &marker); err != nil {
		return nil, fmt.Errorf("corrupt updater marker: %w", err)
	}
	return &marker, nil
}

// SetUpdaterMarker stores the marker; nil clears it.
func (d *DB) SetUpdaterMarker(marker *UpdaterMarker) error {
	if marker == nil {
		return setMeta(d.db, metaUpdater, "")
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return setMeta(d.db, metaUpdater, string(data))
}

func setMeta(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&MetaRow{Key: key, Value: value}).Error
}

// checkDatabaseReadable probes an existing database file before GORM opens
// it, so a truncated or foreign file fails with a clear error instead of a
// migration failure halfway through startup.
func checkDatabaseReadable(dbPath string) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var result string
	if err := sqlDB.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
