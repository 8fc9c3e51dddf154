// Package ledger owns the per-user append-only write ledger. Every
// mutation to a user's hosted data consumes the next clock value, which
// makes the user's record set replicable and diffable against peer
// nodes.
package ledger

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/AudiusProject/audius-protocol-sub027/dbs"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	store dbs.Store
	locks *userLocks
}

func New(store dbs.Store) *Ledger {
	return &Ledger{
		store: store,
		locks: newUserLocks(),
	}
}

func (l *Ledger) AutoMigrate() error {
	return l.store.Get().AutoMigrate(
		&Account{},
		&LedgerEntry{},
		&File{},
		&Track{},
		&AudiusUser{},
		&Playlist{},
	)
}

// Transaction runs fn inside a store transaction. Callers group an
// append with its sibling writes (e.g. a metadata file plus a parent
// entity row) under one scope; an error from fn rolls everything back.
func (l *Ledger) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := l.store.Get().WithContext(ctx).Transaction(fn)
	return translateError(err)
}

// UserTransaction is Transaction plus the per-user in-process lock held
// for the whole scope. Business operations writing for one user run
// under it so same-user transactions serialize end to end; operations
// for different users never contend. Must not be nested with
// ComputeRangeHash or PurgeUser for the same user, which take the same
// lock.
func (l *Ledger) UserTransaction(ctx context.Context, userID uint, fn func(tx *gorm.DB) error) error {
	mu := l.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()
	return l.Transaction(ctx, fn)
}

// CreateAccount onboards a wallet at clock 0.
func (l *Ledger) CreateAccount(tx *gorm.DB, wallet string) (*Account, error) {
	acc := Account{Wallet: wallet}
	if err := tx.Create(&acc).Error; err != nil {
		return nil, translateError(err)
	}
	return &acc, nil
}

// AppendRecord allocates the user's next clock value inside the caller's
// transaction scope: read the current clock under lock, insert the
// ledger entry for clock+1, insert the data record stamped with it, then
// advance the account. A concurrent transaction that reserved the same
// value surfaces as ErrClockConflict; the caller must roll back the
// whole transaction and retry the full business operation.
func (l *Ledger) AppendRecord(tx *gorm.DB, userID uint, rec Record) (int64, error) {
	clocks, err := l.AppendRecords(tx, userID, []Record{rec})
	if err != nil {
		return 0, err
	}
	return clocks[0], nil
}

// AppendRecords is the sequential multi-write variant. Assigned clocks
// are contiguous increments of the starting clock; a pre-stamped record
// whose clock disagrees is rejected with ErrContiguityViolation before
// any row is written.
//
// Serialization comes from the store, not from an in-process lock: on
// postgres the account row stays locked until the transaction commits.
// Two independent appends mistakenly racing inside one shared
// transaction therefore read the same starting clock, and the loser
// dies on the ledger's composite primary key with ErrClockConflict -
// the misuse of the transaction boundary surfaces instead of being
// silently serialized.
func (l *Ledger) AppendRecords(tx *gorm.DB, userID uint, recs []Record) ([]int64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	for _, rec := range recs {
		if !rec.Source().Valid() {
			return nil, common.NewErrorf("invalid_source_table", "unknown source table %q", rec.Source())
		}
	}

	start, err := l.readClock(tx, userID)
	if err != nil {
		return nil, err
	}
	return l.appendAt(tx, userID, start, recs)
}

// readClock reads the user's current clock inside tx, under a row lock
// on engines that support one.
func (l *Ledger) readClock(tx *gorm.DB, userID uint) (int64, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var acc Account
	if err := q.First(&acc, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, common.NewErrorf("account_not_found", "no account for user %d", userID)
		}
		return 0, translateError(err)
	}
	return acc.Clock, nil
}

// appendAt writes the ledger entries and records for clocks
// start+1..start+len(recs) and advances the account.
func (l *Ledger) appendAt(tx *gorm.DB, userID uint, start int64, recs []Record) ([]int64, error) {
	for i, rec := range recs {
		expected := start + int64(i) + 1
		if c := rec.LedgerClock(); c != 0 && c != expected {
			return nil, errors.Wrapf(common.ErrContiguityViolation,
				"record %d carries clock %d, expected %d", i, c, expected)
		}
	}

	clocks := make([]int64, 0, len(recs))
	for i, rec := range recs {
		next := start + int64(i) + 1
		entry := LedgerEntry{UserID: userID, Clock: next, SourceTable: rec.Source()}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, translateError(err)
		}
		rec.StampLedger(userID, next)
		if err := tx.Create(rec).Error; err != nil {
			return nil, translateError(err)
		}
		clocks = append(clocks, next)
	}

	// the clock guard catches a lost update that slipped past the row
	// lock on engines that do not take one
	res := tx.Model(&Account{}).
		Where("id = ? AND clock = ?", userID, start).
		Update("clock", start+int64(len(recs)))
	if res.Error != nil {
		return nil, translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrap(common.ErrClockConflict, "account clock moved during append")
	}
	return clocks, nil
}

// UserKey addresses an account either by internal numeric id or by the
// external wallet address.
type UserKey struct {
	userID uint
	wallet string
}

func ByUserID(id uint) UserKey       { return UserKey{userID: id} }
func ByWallet(wallet string) UserKey { return UserKey{wallet: wallet} }

func (l *Ledger) lookupAccount(ctx context.Context, key UserKey) (*Account, error) {
	var acc Account
	q := l.store.Get().WithContext(ctx)
	var err error
	if key.wallet != "" {
		err = q.Where("wallet = ?", key.wallet).First(&acc).Error
	} else {
		err = q.First(&acc, key.userID).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewErrorf("account_not_found", "no account for key %+v", key)
		}
		return nil, translateError(err)
	}
	return &acc, nil
}

// ComputeRangeHash digests the user's file multihashes ordered by clock,
// optionally windowed to [clockMin, clockMax). Equal digests on two
// nodes imply equal record sets over the range, so peers diff without
// transferring content.
func (l *Ledger) ComputeRangeHash(ctx context.Context, key UserKey, clockMin, clockMax *int64) (string, error) {
	acc, err := l.lookupAccount(ctx, key)
	if err != nil {
		return "", err
	}

	mu := l.locks.get(acc.ID)
	mu.Lock()
	defer mu.Unlock()

	q := l.store.Get().WithContext(ctx).
		Model(&File{}).
		Where("user_id = ?", acc.ID).
		Order("clock asc")
	if clockMin != nil {
		q = q.Where("clock >= ?", *clockMin)
	}
	if clockMax != nil {
		q = q.Where("clock < ?", *clockMax)
	}
	var multihashes []string
	if err := q.Pluck("multihash", &multihashes).Error; err != nil {
		return "", translateError(err)
	}

	joined := "{" + strings.Join(multihashes, ",") + "}"
	sum := md5.Sum([]byte(joined))
	return hex.EncodeToString(sum[:]), nil
}

// PurgeUser tears the account down: every data record, every ledger
// entry and the account row go in one transaction. Used when a replica
// rebalance moves the user to another node.
func (l *Ledger) PurgeUser(ctx context.Context, userID uint) error {
	mu := l.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	err := l.store.Get().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&File{}, &Track{}, &AudiusUser{}, &Playlist{}, &LedgerEntry{}} {
			if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Account{}, userID).Error
	})
	return translateError(err)
}
