package mint

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// splitPositionArgs and negRiskSplitPositionArgs mirror the two
// splitPosition overloads a mint job may target: the standard Gnosis
// conditional-tokens contract (5 args, explicit collateral/partition) and
// the negRisk adapter (2 args, partition implied).
var (
	splitPositionSelector        = methodSelector("splitPosition(address,bytes32,bytes32,uint256[],uint256)")
	negRiskSplitPositionSelector = methodSelector("splitPosition(bytes32,uint256)")

	addressType, _    = abi.NewType("address", "", nil)
	bytes32Type, _    = abi.NewType("bytes32", "", nil)
	uint256Type, _    = abi.NewType("uint256", "", nil)
	uint256ArrType, _ = abi.NewType("uint256[]", "", nil)
)

func methodSelector(signature string) []byte {
	return ethcrypto.Keccak256([]byte(signature))[:4]
}

// standardPartition is the [1, 2] outcome-index partition every binary
// market split uses: index 1 is the YES collection, index 2 is NO.
var standardPartition = []*big.Int{big.NewInt(1), big.NewInt(2)}

// packSplitPosition encodes a call to the standard conditional-tokens
// contract's splitPosition, producing C YES + C NO tokens from C
// collateral for a top-level (non-negRisk) market.
func packSplitPosition(collateralToken common.Address, conditionID [32]byte, amountWei *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: addressType},
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: uint256ArrType},
		{Type: uint256Type},
	}
	packed, err := args.Pack(collateralToken, [32]byte{}, conditionID, standardPartition, amountWei)
	if err != nil {
		return nil, fmt.Errorf("mint: pack splitPosition: %w", err)
	}
	return append(append([]byte{}, splitPositionSelector...), packed...), nil
}

// packNegRiskSplitPosition encodes a call to the negRisk adapter's
// splitPosition, which implies the partition and collateral token from the
// conditionId's registered market.
func packNegRiskSplitPosition(conditionID [32]byte, amountWei *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: bytes32Type},
		{Type: uint256Type},
	}
	packed, err := args.Pack(conditionID, amountWei)
	if err != nil {
		return nil, fmt.Errorf("mint: pack negRisk splitPosition: %w", err)
	}
	return append(append([]byte{}, negRiskSplitPositionSelector...), packed...), nil
}

// packExecTransaction encodes the Safe's execTransaction call, wrapping an
// inner splitPosition call targeted at `to` with the given signature bytes.
func packExecTransaction(to common.Address, data []byte, signature []byte) ([]byte, error) {
	selector := methodSelector("execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)")
	bytesType, _ := abi.NewType("bytes", "", nil)
	uint8Type, _ := abi.NewType("uint8", "", nil)

	args := abi.Arguments{
		{Type: addressType},   // to
		{Type: uint256Type},   // value
		{Type: bytesType},     // data
		{Type: uint8Type},     // operation
		{Type: uint256Type},   // safeTxGas
		{Type: uint256Type},   // baseGas
		{Type: uint256Type},   // gasPrice
		{Type: addressType},   // gasToken
		{Type: addressType},   // refundReceiver
		{Type: bytesType},     // signatures
	}
	packed, err := args.Pack(
		to,
		big.NewInt(0),
		data,
		uint8(0), // Call, never Delegatecall
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(0),
		common.Address{},
		common.Address{},
		signature,
	)
	if err != nil {
		return nil, fmt.Errorf("mint: pack execTransaction: %w", err)
	}
	return append(append([]byte{}, selector...), packed...), nil
}

// conditionIDBytes32 parses a 0x-prefixed or bare hex conditionId string
// into the 32-byte array the ABI encoder expects.
func conditionIDBytes32(conditionID string) ([32]byte, error) {
	var out [32]byte
	b := common.FromHex(conditionID)
	if len(b) == 0 || len(b) > 32 {
		return out, fmt.Errorf("mint: invalid conditionId %q", conditionID)
	}
	copy(out[32-len(b):], b)
	return out, nil
}
