package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// safeTxTypeHash is keccak256 of the Gnosis Safe SafeTx struct signature.
// Safe's domain separator omits name/version entirely (chainId and
// verifyingContract only) — unlike the exchange's order domain, this one
// is fixed by the Safe contract itself, not chosen by the caller.
var (
	safeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(uint256 chainId,address verifyingContract)"),
	)

	safeTxTypeHash = ethcrypto.Keccak256(
		[]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"),
	)
)

// SafeTx is a Gnosis Safe transaction envelope, signed by the controlling
// EOA and submitted on-chain via the Safe's execTransaction. Operation is
// always 0 (Call) for the mint path; this engine never does Delegatecall.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// SignSafeTx signs tx for submission through safeAddress's execTransaction
// and returns the 65-byte hex signature Safe expects in the `signatures`
// parameter.
func (s *Signer) SignSafeTx(tx SafeTx, safeAddress common.Address) (string, error) {
	domainSep := s.buildSafeDomainSeparator(safeAddress)
	structHash := safeTxStructHash(tx)
	digest := eip712Hash(domainSep, structHash)
	return s.signDigest(digest)
}

// buildSafeDomainSeparator returns keccak256(abi.encode(typeHash, chainId,
// verifyingContract)) for the Safe EIP-712 domain, which has no name or
// version fields.
func (s *Signer) buildSafeDomainSeparator(safeAddress common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			safeDomainTypeHash,
			bigIntTo32Bytes(big.NewInt(int64(s.chainID))),
			common.LeftPadBytes(safeAddress.Bytes(), 32),
		),
	)
}

func safeTxStructHash(tx SafeTx) []byte {
	dataHash := ethcrypto.Keccak256(tx.Data)

	return ethcrypto.Keccak256(
		concatBytes(
			safeTxTypeHash,
			common.LeftPadBytes(tx.To.Bytes(), 32),
			bigIntTo32Bytes(orZero(tx.Value)),
			dataHash,
			bigIntTo32Bytes(big.NewInt(int64(tx.Operation))),
			bigIntTo32Bytes(orZero(tx.SafeTxGas)),
			bigIntTo32Bytes(orZero(tx.BaseGas)),
			bigIntTo32Bytes(orZero(tx.GasPrice)),
			common.LeftPadBytes(tx.GasToken.Bytes(), 32),
			common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
			bigIntTo32Bytes(orZero(tx.Nonce)),
		),
	)
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return n
}
