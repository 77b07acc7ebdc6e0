package sharemath

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
)

// PortProfileDataSize is the exact byte length of a Port lending obligation
// account. Records of any other length are rejected as spoofed or stale.
const PortProfileDataSize = 916

// Obligation is a decoded lending obligation: who owns it, which market it
// belongs to, and what collateral it deposited.
type Obligation struct {
	LendingMarket string
	Owner         string
	Deposits      []ObligationDeposit
}

// ObligationDeposit is one collateral deposit inside an obligation.
type ObligationDeposit struct {
	Reserve string
	Amount  *big.Int
}

// ObligationDecoder parses raw lending obligation account blobs.
type ObligationDecoder interface {
	Decode(data []byte) (*Obligation, error)
}

// PortDecoder implements ObligationDecoder for the Port profile layout:
// version (1) | last update slot (8) | stale flag (1) | lending market (32) |
// owner (32) | four u128 valuations (64) | deposits len (1) | borrows len (1)
// | flattened entries. Each deposit entry is reserve (32) | amount (8) |
// market value (16).
type PortDecoder struct{}

var _ ObligationDecoder = PortDecoder{}

const (
	portLendingMarketOffset = 10
	portOwnerOffset         = 42
	portDepositsLenOffset   = 138
	portBorrowsLenOffset    = 139
	portDataFlatOffset      = 140
	portDepositEntrySize    = 56
)

func (PortDecoder) Decode(data []byte) (*Obligation, error) {
	if len(data) != PortProfileDataSize {
		return nil, fmt.Errorf("obligation blob: expected %d bytes, got %d", PortProfileDataSize, len(data))
	}

	o := &Obligation{
		LendingMarket: base58.Encode(data[portLendingMarketOffset : portLendingMarketOffset+32]),
		Owner:         base58.Encode(data[portOwnerOffset : portOwnerOffset+32]),
	}

	depositsLen := int(data[portDepositsLenOffset])
	end := portDataFlatOffset + depositsLen*portDepositEntrySize
	if end > len(data) {
		return nil, fmt.Errorf("obligation blob: %d deposits overflow %d-byte record", depositsLen, len(data))
	}

	for i := 0; i < depositsLen; i++ {
		entry := data[portDataFlatOffset+i*portDepositEntrySize:]
		amount := binary.LittleEndian.Uint64(entry[32:40])
		o.Deposits = append(o.Deposits, ObligationDeposit{
			Reserve: base58.Encode(entry[:32]),
			Amount:  new(big.Int).SetUint64(amount),
		})
	}
	return o, nil
}
