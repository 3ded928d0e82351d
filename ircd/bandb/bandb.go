// Package bandb persists access-control records (K/D/X-lines and
// resvs) across restarts, reloading them at startup as BANDB_KLINE/
// DLINE/XLINE/RESV rows. DSN-scheme driver dispatch follows
// nabbar-golib/database/gorm's `Driver.Dialector` pattern, adapted from
// its general-purpose multi-driver database component down to the one
// table this package needs.
package bandb

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/solanum-irc/solanum/ircd"
)

// Record is the persisted row for one access-control entry. Kind
// mirrors ircd.ConfKind; Hold/Lifetime zero means "permanent, no
// propagation metadata" the way ircd.Conf itself represents it.
type Record struct {
	ID uint `gorm:"primaryKey"`

	Kind     int    `gorm:"index"`
	UserMask string `gorm:"index"`
	HostMask string `gorm:"index"`

	Reason     string
	OperReason string
	Oper       string

	Created  time.Time
	Hold     time.Time
	Lifetime time.Time

	UpdatedAt time.Time
}

func (Record) TableName() string { return "bandb_records" }

// Store wraps the opened database connection.
type Store struct {
	db *gorm.DB
}

// Open selects a gorm dialector by the DSN's scheme prefix
// ("sqlite://", "mysql://", "postgres://") the way
// nabbar-golib/database/gorm.Driver.Dialector selects by a configured
// driver name, then migrates the bandb_records table.
func Open(dsn string) (*Store, error) {
	dialector, trimmed, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector(trimmed), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("bandb: open: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("bandb: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func dialectorFor(dsn string) (func(string) gorm.Dialector, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open, strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open, dsn, nil
	default:
		// no recognized scheme: treat the whole string as a sqlite file
		// path, matching how a bare filename configures sqlite elsewhere
		// in the pack.
		return sqlite.Open, dsn, nil
	}
}

// RegisterPersistence subscribes Store to the server's ban_installed
// and ban_removed hooks so every KLINE/DLINE/XLINE/RESV/UN* command
// durably persists, independent of ircd/peering's mesh propagation of
// the same events.
func (s *Store) RegisterPersistence(server *ircd.Server) {
	server.Hooks.AddBanInstalled(ircd.PriorityMonitor, func(d *ircd.BanInstalledData) {
		if err := s.Add(d.Conf, d.OperName); err != nil {
			server.Logger.Printf("bandb: persist failed: %v", err)
		}
	})
	server.Hooks.AddBanRemoved(ircd.PriorityMonitor, func(d *ircd.BanRemovedData) {
		if _, err := s.Delete(d.Kind, d.UserMask, d.HostMask); err != nil {
			server.Logger.Printf("bandb: delete failed: %v", err)
		}
	})
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add persists rec. An existing row with the same (kind, user, host)
// is overwritten.
func (s *Store) Add(rec *ircd.Conf, operName string) error {
	row := Record{
		Kind:       int(rec.Kind),
		UserMask:   rec.UserMask,
		HostMask:   rec.HostMask,
		Reason:     rec.Reason,
		OperReason: rec.OperReason,
		Oper:       operName,
		Created:    rec.Created,
		Hold:       rec.Hold,
		Lifetime:   rec.Lifetime,
	}

	return s.db.Where("kind = ? AND user_mask = ? AND host_mask = ?", row.Kind, row.UserMask, row.HostMask).
		Assign(row).
		FirstOrCreate(&Record{}).Error
}

// Delete removes the persisted record for (kind, userMask, hostMask).
// It reports whether a row was actually removed.
func (s *Store) Delete(kind ircd.ConfKind, userMask, hostMask string) (bool, error) {
	res := s.db.Where("kind = ? AND user_mask = ? AND host_mask = ?", int(kind), userMask, hostMask).
		Delete(&Record{})
	return res.RowsAffected > 0, res.Error
}

// LoadAll streams every persisted record back as an ircd.Conf. Callers
// install the returned records into ircd.AddressIndex/TempBanStore
// themselves.
func (s *Store) LoadAll() ([]*ircd.Conf, error) {
	var rows []Record
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("bandb: load: %w", err)
	}

	out := make([]*ircd.Conf, 0, len(rows))
	for _, row := range rows {
		out = append(out, &ircd.Conf{
			Kind:       ircd.ConfKind(row.Kind),
			UserMask:   row.UserMask,
			HostMask:   row.HostMask,
			Reason:     row.Reason,
			OperReason: row.OperReason,
			Created:    row.Created,
			Hold:       row.Hold,
			Lifetime:   row.Lifetime,
		})
	}
	return out, nil
}
