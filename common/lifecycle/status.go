// Package lifecycle maps ledger status codes to canonical stage names.
package lifecycle

// Stage codes as assigned by the deployed traceability contract.
const (
	StatusHarvested = 0
	StatusProcessed = 1
	StatusPacked    = 2
	StatusForSale   = 3
	StatusSold      = 4
	StatusShipped   = 5
	StatusReceived  = 6
	StatusPurchased = 7
)

// StatusUnknown is returned for any code outside the known table. The
// table may lag ledger upgrades; callers must keep working on codes they
// have never seen.
const StatusUnknown = "Unknown"

var stageNames = [...]string{
	StatusHarvested: "Harvested",
	StatusProcessed: "Processed",
	StatusPacked:    "Packed",
	StatusForSale:   "ForSale",
	StatusSold:      "Sold",
	StatusShipped:   "Shipped",
	StatusReceived:  "Received",
	StatusPurchased: "Purchased",
}

// KnownStatusCount is the number of stages the current table covers.
const KnownStatusCount = len(stageNames)

// StatusName maps a ledger status code to its stage name. Total: any code
// outside the table yields StatusUnknown, never a panic.
func StatusName(code int) string {
	if code < 0 || code >= KnownStatusCount {
		return StatusUnknown
	}
	return stageNames[code]
}
