package paytr

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paytr-payment-api/services/payment/card"
)

func fastSimulator() *Simulator {
	return NewSimulator(SimulatorConfig{LinkBaseURL: "https://gateway.test/link"}, nil)
}

func TestSimulateCharge_KnownTestCard(t *testing.T) {
	res, err := fastSimulator().SimulateCharge(context.Background(), testCharge())
	require.NoError(t, err)

	assert.True(t, res.Simulated)
	assert.Equal(t, "PayTR Test", res.Bank)
	assert.Equal(t, int64(10000), res.AmountMinorUnits)
	assert.True(t, strings.HasPrefix(res.TransactionID, simulatedIDPrefix))
	assert.Len(t, res.AuthCode, 6)
}

func TestSimulateCharge_UnknownCardStillSucceeds(t *testing.T) {
	req := testCharge()
	req.Card.Number = "1234567812345670"

	res, err := fastSimulator().SimulateCharge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, card.UnknownBankLabel, res.Bank)
}

func TestSimulateLink(t *testing.T) {
	res, err := fastSimulator().SimulateLink(context.Background(), &LinkRequest{MerchantOID: "PTR1"})
	require.NoError(t, err)
	assert.True(t, res.Simulated)
	assert.Equal(t, "https://gateway.test/link/"+res.Token, res.PaymentURL)
}

func TestSimulateStatus(t *testing.T) {
	res, err := fastSimulator().SimulateStatus(context.Background(), &StatusRequest{MerchantOID: "PTR1"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "PTR1", res.MerchantOID)
	assert.True(t, res.Simulated)
}

func TestSimulator_DelayAndCancellation(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{Delay: 50 * time.Millisecond}, nil)

	start := time.Now()
	_, err := sim.SimulateStatus(context.Background(), &StatusRequest{MerchantOID: "PTR1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	slow := NewSimulator(SimulatorConfig{Delay: time.Minute}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start = time.Now()
	_, err = slow.SimulateCharge(ctx, testCharge())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindNetwork, gerr.Kind)
	assert.True(t, gerr.IsTimeout())
}

func TestSimulateCharge_ShapeParityWithLive(t *testing.T) {
	req := testCharge()
	simulated, err := fastSimulator().SimulateCharge(context.Background(), req)
	require.NoError(t, err)
	live, err := ParseChargeResponse("success:LIVE123", req)
	require.NoError(t, err)

	// Only identifiers and the simulated flag differ.
	simulated.TransactionID, live.TransactionID = "", ""
	simulated.AuthCode, live.AuthCode = "", ""
	simulated.Simulated = false
	assert.Equal(t, live, simulated)
}
