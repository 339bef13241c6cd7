package escrow

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/order"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

var (
	payer       = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	escrowAddr  = common.HexToAddress("0x00000000000000000000000000000000000E5C40")
	conditionID = common.HexToHash("0xbd31dc8a20211944f6b70f31557f1001557b59905b7738480ca09bd4532f84af")
)

func testSigner(t *testing.T) *signer.PrivateKeySigner {
	t.Helper()
	s, err := signer.FromHex("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	return s
}

func sampleInput() OrderIDInput {
	return OrderIDInput{
		Payer:       payer,
		TokenID:     big.NewInt(1234),
		Side:        0,
		MakerAmount: big.NewInt(5_500_000),
		TakerAmount: big.NewInt(10_000_000),
		Salt:        big.NewInt(42),
	}
}

func TestOrderIDIsDeterministic(t *testing.T) {
	a, err := OrderID(sampleInput())
	require.NoError(t, err)
	b, err := OrderID(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := sampleInput()
	changed.Salt = big.NewInt(43)
	c, err := OrderID(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestOrderIDMatchesManualEncoding(t *testing.T) {
	in := sampleInput()
	word := func(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }
	var manual []byte
	manual = append(manual, common.LeftPadBytes(in.Payer.Bytes(), 32)...)
	manual = append(manual, word(in.TokenID)...)
	manual = append(manual, word(big.NewInt(int64(in.Side)))...)
	manual = append(manual, word(in.MakerAmount)...)
	manual = append(manual, word(in.TakerAmount)...)
	manual = append(manual, word(in.Salt)...)

	got, err := OrderID(in)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.Keccak256Hash(manual), got)
}

func TestOrderIDRejectsMissingFields(t *testing.T) {
	in := sampleInput()
	in.MakerAmount = nil
	_, err := OrderID(in)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOrderIDForSignedOrder(t *testing.T) {
	o := order.SignedOrder{
		Salt:        42,
		Maker:       payer.Hex(),
		TokenID:     "1234",
		MakerAmount: "5500000",
		TakerAmount: "10000000",
		Side:        order.SideBuy,
	}
	got, err := OrderIDFor(o)
	require.NoError(t, err)
	want, err := OrderID(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	o.TokenID = "not-a-number"
	_, err = OrderIDFor(o)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPositionID(t *testing.T) {
	a, err := PositionID(payer, conditionID, 1)
	require.NoError(t, err)
	b, err := PositionID(payer, conditionID, 1)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := PositionID(payer, conditionID, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	manual := append(common.LeftPadBytes(payer.Bytes(), 32), conditionID.Bytes()...)
	manual = append(manual, common.LeftPadBytes([]byte{1}, 32)...)
	assert.Equal(t, ethcrypto.Keccak256Hash(manual), a)
}

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name                      string
		notional                  int64
		sched                     FeeSchedule
		total, platform, referrer int64
	}{
		{"no referrer", 10_000_000, FeeSchedule{FeeBps: 100}, 100_000, 100_000, 0},
		{"quarter to referrer", 10_000_000, FeeSchedule{FeeBps: 100, ReferrerShareBps: 2500}, 100_000, 75_000, 25_000},
		{"rounds down", 333, FeeSchedule{FeeBps: 100, ReferrerShareBps: 5000}, 3, 2, 1},
		{"zero fee", 10_000_000, FeeSchedule{}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := SplitFee(big.NewInt(tt.notional), tt.sched)
			require.NoError(t, err)
			assert.Equal(t, tt.total, split.Total.Int64())
			assert.Equal(t, tt.platform, split.Platform.Int64())
			assert.Equal(t, tt.referrer, split.Referrer.Int64())
			assert.Equal(t, split.Total, new(big.Int).Add(split.Platform, split.Referrer))
		})
	}
}

func TestSplitFeeRejectsBadSchedule(t *testing.T) {
	_, err := SplitFee(big.NewInt(1), FeeSchedule{FeeBps: 10_001})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = SplitFee(big.NewInt(-1), FeeSchedule{FeeBps: 1})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPerformanceFee(t *testing.T) {
	fee, err := PerformanceFee(big.NewInt(15_000_000), big.NewInt(10_000_000), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), fee.Int64())

	fee, err = PerformanceFee(big.NewInt(8_000_000), big.NewInt(10_000_000), 1000)
	require.NoError(t, err)
	assert.Zero(t, fee.Sign())
}

func TestFormatUSDC(t *testing.T) {
	assert.Equal(t, "1.5", FormatUSDC(big.NewInt(1_500_000)))
	assert.Equal(t, "0", FormatUSDC(nil))
}

func TestFeeAuthorizationTotal(t *testing.T) {
	var none *FeeAuthorization
	assert.Equal(t, "0", FormatUSDC(none.Total()))

	orderFee := &FeeAuthorization{PlatformFee: "40000", ReferrerFee: "10000"}
	assert.Equal(t, "0.05", FormatUSDC(orderFee.Total()))

	perfFee := &FeeAuthorization{Fee: "100000"}
	assert.Equal(t, int64(100_000), perfFee.Total().Int64())
}

func TestNewAuthorizerValidates(t *testing.T) {
	_, err := NewAuthorizer(polymarket.ChainPolygon, common.Address{}, time.Minute)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = NewAuthorizer(polymarket.ChainPolygon, escrowAddr, 0)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSignOrderFee(t *testing.T) {
	s := testSigner(t)
	a, err := NewAuthorizer(polymarket.ChainPolygon, escrowAddr, 5*time.Minute)
	require.NoError(t, err)
	fixed := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return fixed }

	orderID, err := OrderID(sampleInput())
	require.NoError(t, err)
	split, err := SplitFee(big.NewInt(10_000_000), FeeSchedule{FeeBps: 100, ReferrerShareBps: 2500})
	require.NoError(t, err)

	auth, err := a.SignOrderFee(context.Background(), s, payer, orderID, split)
	require.NoError(t, err)
	assert.Equal(t, orderID.Hex(), auth.OrderID)
	assert.Equal(t, "75000", auth.PlatformFee)
	assert.Equal(t, "25000", auth.ReferrerFee)
	assert.Equal(t, fixed.Add(5*time.Minute).Unix(), auth.Deadline)
	assert.Greater(t, auth.Deadline, fixed.Unix())
	assert.Equal(t, int64(polymarket.ChainPolygon), auth.ChainID)

	sig, err := hexutil.Decode(auth.Signature)
	require.NoError(t, err)
	recovered, err := signer.Recover(a.OrderFeeTypedData(orderID, payer, split, auth.Deadline), sig)
	require.NoError(t, err)
	assert.Equal(t, payer, recovered)
}

func TestSignPerformanceFee(t *testing.T) {
	s := testSigner(t)
	a, err := NewAuthorizer(polymarket.ChainAmoy, escrowAddr, time.Minute)
	require.NoError(t, err)

	positionID, err := PositionID(payer, conditionID, 1)
	require.NoError(t, err)
	before := time.Now().Unix()

	auth, err := a.SignPerformanceFee(context.Background(), s, payer, positionID, big.NewInt(500_000))
	require.NoError(t, err)
	assert.Equal(t, positionID.Hex(), auth.PositionID)
	assert.Equal(t, "500000", auth.Fee)
	assert.Greater(t, auth.Deadline, before)

	sig, err := hexutil.Decode(auth.Signature)
	require.NoError(t, err)
	recovered, err := signer.Recover(a.PerformanceFeeTypedData(positionID, payer, big.NewInt(500_000), auth.Deadline), sig)
	require.NoError(t, err)
	assert.Equal(t, payer, recovered)

	_, err = a.SignPerformanceFee(context.Background(), s, payer, positionID, big.NewInt(-1))
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func intPtr(v int) *int { return &v }

func TestClaimRequestValidate(t *testing.T) {
	base := ClaimRequest{
		PositionID:    "0xabc",
		PayerAddress:  payer.Hex(),
		SignerAddress: payer.Hex(),
	}
	signed := base
	signed.WalletType = WalletDirect
	signed.SignedRedeemTx = "0x02f8"

	delegated := base
	delegated.WalletType = WalletCustodial
	delegated.PrivyWalletID = "wallet-1"
	delegated.ConditionID = conditionID.Hex()
	delegated.OutcomeIndex = intPtr(0)

	both := delegated
	both.SignedRedeemTx = "0x02f8"

	neither := base
	neither.WalletType = WalletDirect

	partial := delegated
	partial.ConditionID = ""

	wrongType := signed
	wrongType.WalletType = WalletCustodial

	unknownType := signed
	unknownType.WalletType = "hardware"

	noPosition := signed
	noPosition.PositionID = ""

	tests := []struct {
		name  string
		req   ClaimRequest
		valid bool
	}{
		{"signed direct", signed, true},
		{"delegated custodial", delegated, true},
		{"both modes", both, false},
		{"neither mode", neither, false},
		{"partial delegation", partial, false},
		{"signed tx on custodial", wrongType, false},
		{"unknown wallet type", unknownType, false},
		{"missing position", noPosition, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrInvalidClaim)
		})
	}
}

func TestBuildRedeemCall(t *testing.T) {
	c := polymarket.PolygonContracts
	call, err := BuildRedeemCall(c, conditionID, 1)
	require.NoError(t, err)
	assert.Equal(t, c.ConditionalTokens, call.To)

	parsed, err := abi.JSON(strings.NewReader(redeemABI))
	require.NoError(t, err)
	method, err := parsed.MethodById(call.Data[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, c.Collateral, args[0].(common.Address))
	assert.Equal(t, [32]byte(conditionID), args[2].([32]byte))
	assert.Equal(t, []*big.Int{big.NewInt(2)}, args[3].([]*big.Int))

	_, err = BuildRedeemCall(c, conditionID, -1)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
