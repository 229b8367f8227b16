/**
 * @description
 * ID generation for domain entities. Transaction ids are time-derived with a
 * random suffix so that ids sort roughly by creation time and collisions are
 * practically impossible; user and beneficiary ids are short prefixed random
 * identifiers.
 *
 * @dependencies
 * - crypto/rand: For the random suffixes.
 * - github.com/google/uuid: For audit log and request identifiers.
 */

package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTransactionID returns an id of the form TXN20250831142233123456:
// a UTC second-resolution timestamp followed by six random digits. Uniqueness
// is practically guaranteed, not mathematically proven.
func NewTransactionID(now time.Time) string {
	var b strings.Builder
	b.WriteString("TXN")
	b.WriteString(now.UTC().Format("20060102150405"))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; fall back to the low bits of the clock.
			b.WriteString(fmt.Sprintf("%d", now.UnixNano()%10))
			continue
		}
		b.WriteString(n.String())
	}
	return b.String()
}

// NewUserID returns an id of the form USR3F2A91BC.
func NewUserID() string {
	return "USR" + randomHex8()
}

// NewBeneficiaryID returns an id of the form BEN3F2A91BC.
func NewBeneficiaryID() string {
	return "BEN" + randomHex8()
}

// NewLogID returns a UUID for an audit log entry.
func NewLogID() string {
	return uuid.NewString()
}

func randomHex8() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:8])
}
