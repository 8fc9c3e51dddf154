package ledger

import (
	"strings"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/pkg/errors"
)

// translateError maps driver-level failures onto the ledger taxonomy.
// Duplicate keys on the ledger's composite PK mean a concurrent writer
// reserved the same clock; both postgres and sqlite spellings are
// matched since tests run on sqlite.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed"):
		return errors.Wrap(common.ErrClockConflict, msg)
	case strings.Contains(msg, "violates foreign key constraint") || strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return errors.Wrap(common.ErrForeignKeyViolation, msg)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "database is closed"):
		return errors.Wrap(common.ErrStoreUnavailable, msg)
	}
	return err
}
