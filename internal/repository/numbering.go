package repository

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// nextNumber returns the next sequential document number under prefix, e.g. DF-20260115-00003.
// The advisory lock is held until the surrounding transaction ends, so callers must run
// inside RunInTx for the number to be unique.
func nextNumber(db *gorm.DB, table, column, prefix string) (string, error) {
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
		return "", fmt.Errorf("failed to lock number sequence: %w", err)
	}

	// MAX rather than COUNT: deleted drafts leave gaps in the sequence
	var last string
	if err := db.Table(table).
		Select("COALESCE(MAX("+column+"), '')").
		Where(column+" LIKE ?", prefix+"%").
		Scan(&last).Error; err != nil {
		return "", fmt.Errorf("failed to read last number for %s: %w", prefix, err)
	}

	seq := 0
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil {
			return "", fmt.Errorf("malformed document number %q: %w", last, err)
		}
		seq = n
	}
	return formatNumber(prefix, seq+1), nil
}

func formatNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s%05d", prefix, seq)
}
