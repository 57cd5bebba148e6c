// Package chartid derives the stable identifier that joins every
// collected record type to its row in the charts table.
package chartid

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// ChartID computes the identity for one chart: an md5 of the title
// followed by the difficulty token and the level with "+" spelled out
// ("13+" -> "13plus"). the format is shared with the persisted dataset
// and its consumers, do not change it.
func ChartID(title, diff, level string) string {
	sum := md5.Sum([]byte(title))
	safeLevel := strings.ReplaceAll(level, "+", "plus")
	return fmt.Sprintf("%s_%s_%s", hex.EncodeToString(sum[:]), diff, safeLevel)
}
