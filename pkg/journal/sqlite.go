package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"

	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
)

// SQLiteJournal is an offline copy of monitor accounts for ad-hoc SQL.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

// ExportRegion decodes a raw account region and writes its header and every
// record. Records already exported for the account are left as they are, so
// exporting the same account again only adds what was appended since.
func (j *SQLiteJournal) ExportRegion(ctx context.Context, addr common.Address, region []byte, now time.Time) (int, error) {
	acc, err := account.Load(region)
	if err != nil {
		return 0, err
	}
	records, err := acc.ReadAll()
	if err != nil {
		return 0, err
	}
	if err := j.RecordAccount(ctx, addr, acc.Header(), now); err != nil {
		return 0, err
	}
	return j.RecordEvents(ctx, addr, 0, records)
}

func (j *SQLiteJournal) RecordAccount(ctx context.Context, addr common.Address, h account.Header, now time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO accounts (address, owner, capacity, count, exported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner, capacity = excluded.capacity,
			count = excluded.count, exported_at = excluded.exported_at`,
		addr.Hex(), h.Owner.Hex(), int64(h.Capacity), int64(h.Count), now.Unix(),
	)
	return err
}

// RecordEvents inserts records with sequence numbers starting at firstSeq and
// returns how many rows were new.
func (j *SQLiteJournal) RecordEvents(ctx context.Context, addr common.Address, firstSeq uint64, records []record.Record) (int, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events
		(account, seq, event_type, market, price, size, direction, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for i, r := range records {
		res, err := stmt.ExecContext(ctx,
			addr.Hex(), int64(firstSeq)+int64(i), r.EventType.String(), r.Market,
			strconv.FormatUint(r.Price, 10), strconv.FormatUint(r.Size, 10),
			r.Direction.String(), r.Timestamp,
		)
		if err != nil {
			return 0, fmt.Errorf("insert event %d: %w", firstSeq+uint64(i), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListEvents returns the exported records of an account in sequence order
func (j *SQLiteJournal) ListEvents(ctx context.Context, addr common.Address) ([]record.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_type, market, price, size, direction, timestamp
		FROM events WHERE account = ? ORDER BY seq`, addr.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var (
			et, market, price, size, dir string
			r                            record.Record
		)
		if err := rows.Scan(&et, &market, &price, &size, &dir, &r.Timestamp); err != nil {
			return nil, err
		}
		if r.EventType, err = record.ParseEventType(et); err != nil {
			return nil, err
		}
		if r.Direction, err = record.ParseDirection(dir); err != nil {
			return nil, err
		}
		if r.Price, err = strconv.ParseUint(price, 10, 64); err != nil {
			return nil, fmt.Errorf("price %q: %w", price, err)
		}
		if r.Size, err = strconv.ParseUint(size, 10, 64); err != nil {
			return nil, fmt.Errorf("size %q: %w", size, err)
		}
		r.Market = market
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
