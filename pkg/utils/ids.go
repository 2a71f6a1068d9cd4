package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRecordID builds "<prefix>_<unix ms>_<12 random hex chars>". The time
// part keeps ids roughly sortable, the random part keeps them unique.
func NewRecordID(prefix string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), random)
}

// TargetKey hashes a (brand, query, website) triple into a stable key for
// logs and metrics labels.
func TargetKey(brand, query, website string) string {
	hash := md5.Sum([]byte(strings.ToLower(brand) + "\x00" + strings.ToLower(query) + "\x00" + strings.ToLower(website)))
	return fmt.Sprintf("%x", hash[:8])
}
