package workbench

import (
	"math/big"
	"strings"
)

// DeriveBarcode maps a unit's uuid to its 12-digit internal barcode: the
// leading decimal digits of the uuid interpreted as one big integer. Stable
// for a given uuid, which keeps reprinted labels identical.
func DeriveBarcode(unitID string) string {
	hexDigits := strings.ReplaceAll(unitID, "-", "")
	value, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		return ""
	}
	decimal := value.String()
	if len(decimal) > 12 {
		decimal = decimal[:12]
	}
	return decimal
}
