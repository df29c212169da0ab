package checkout

import (
	"strconv"
	"strings"
)

type proofSubmission struct {
	PurchaseID int64
	Proof      string
}

// parseProof extracts an optional purchase id and the proof token from
// free-form receipt text. Accepted forms: "<label> <id> <proof>",
// "<id> <proof>", or a bare "<proof>" applying to the submitter's most
// recent pending purchase (the proof is the last token then).
func parseProof(text string) proofSubmission {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return proofSubmission{}
	}

	if len(fields) >= 3 {
		if id, err := strconv.ParseInt(fields[1], 10, 64); err == nil && id > 0 {
			return proofSubmission{PurchaseID: id, Proof: fields[2]}
		}
	}
	if len(fields) == 2 {
		if id, err := strconv.ParseInt(fields[0], 10, 64); err == nil && id > 0 {
			return proofSubmission{PurchaseID: id, Proof: fields[1]}
		}
	}

	return proofSubmission{Proof: fields[len(fields)-1]}
}
