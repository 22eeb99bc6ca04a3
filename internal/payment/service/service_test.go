package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/migration"
	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	"github.com/smallbiznis/paycore/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/internal/payment/recorder"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"github.com/smallbiznis/paycore/internal/payment/tokenguard"
	"github.com/smallbiznis/paycore/internal/reference"
)

type stubAdapter struct {
	mock.Mock
	name       string
	currencies []string
}

func newStubAdapter(name string, currencies ...string) *stubAdapter {
	return &stubAdapter{name: name, currencies: currencies}
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) SupportsCurrency(currency string) bool {
	for _, c := range s.currencies {
		if c == currency {
			return true
		}
	}
	return false
}

func (s *stubAdapter) Sale(ctx context.Context, req paymentdomain.SaleRequest) (*paymentdomain.GatewayResult, error) {
	args := s.Called(ctx, req)
	result, _ := args.Get(0).(*paymentdomain.GatewayResult)
	return result, args.Error(1)
}

func (s *stubAdapter) Refund(ctx context.Context, req paymentdomain.RefundCall) (*paymentdomain.GatewayResult, error) {
	args := s.Called(ctx, req)
	result, _ := args.Get(0).(*paymentdomain.GatewayResult)
	return result, args.Error(1)
}

type addressAdapter struct {
	*stubAdapter
}

func (a *addressAdapter) LookupAddress(ctx context.Context, token string) (*paymentdomain.GatewayAddress, error) {
	args := a.Called(ctx, token)
	address, _ := args.Get(0).(*paymentdomain.GatewayAddress)
	return address, args.Error(1)
}

type fixture struct {
	db        *gorm.DB
	recorder  *recorder.Recorder
	processor *Processor
	refunds   *RefundCoordinator
	resolver  *AddressResolver
}

func newFixture(t *testing.T, gateways ...paymentdomain.GatewayAdapter) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:paymentsvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	rec := recorder.New(recorder.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	registry := adapters.NewRegistry()
	for _, gateway := range gateways {
		registry.Register(gateway)
	}

	params := Params{
		Config: config.Config{Payment: config.PaymentConfig{
			DefaultGateway: "stub",
			GatewayTimeout: 50 * time.Millisecond,
		}},
		Log:        zap.NewNop(),
		Registry:   registry,
		Recorder:   rec,
		Guard:      tokenguard.NewDatabaseGuard(conn, repository.ProvideTokenClaims(), clk),
		Locker:     lock.NewLocalLocker(),
		References: reference.NewRepository(conn),
	}
	return &fixture{
		db:        conn,
		recorder:  rec,
		processor: NewProcessor(params),
		refunds:   NewRefundCoordinator(params),
		resolver:  NewAddressResolver(params),
	}
}

func (f *fixture) countRecords(t *testing.T, direction string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM processor_response_records WHERE direction = ?`, direction).Scan(&count).Error)
	return count
}

func (f *fixture) seedSale(t *testing.T, gateway, transactionID string, amount money.Money) {
	t.Helper()
	minor, err := amount.ToMinor()
	require.NoError(t, err)
	_, err = f.recorder.Record(context.Background(), &paymentdomain.ProcessorResponseRecord{
		AttemptID:       "seed-" + transactionID,
		BasketReference: "basket-" + transactionID,
		TransactionID:   &transactionID,
		Gateway:         gateway,
		Direction:       paymentdomain.DirectionSale,
		Outcome:         paymentdomain.OutcomeSuccess,
		AmountMinor:     minor,
		Currency:        amount.Currency,
	})
	require.NoError(t, err)
}

func withToken(token string) interface{} {
	return mock.MatchedBy(func(req paymentdomain.SaleRequest) bool { return req.PaymentToken == token })
}

func TestChargeSettlesAndRecordsOnce(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Sale", mock.Anything, mock.MatchedBy(func(req paymentdomain.SaleRequest) bool {
		return req.BasketReference == "B-100" &&
			req.AmountMinor == 4999 &&
			req.Currency == "USD" &&
			req.SubmitForSettlement &&
			req.AttemptID != ""
	})).Return(&paymentdomain.GatewayResult{
		Success:       true,
		TransactionID: "txn_A",
		AmountMinor:   4999,
		Currency:      "USD",
		CardLabel:     "1111",
		CardType:      "visa",
		RawPayload:    []byte(`{"id":"txn_A"}`),
	}, nil).Once()
	f := newFixture(t, stub)

	resp, err := f.processor.Charge(context.Background(), paymentdomain.ChargeRequest{
		BasketReference: "B-100",
		Amount:          money.MustParse("49.99", "USD"),
		PaymentToken:    "tok_A",
		GatewayName:     "stub",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn_A", resp.TransactionID)
	assert.True(t, resp.Total.Equal(money.MustParse("49.99", "USD")))
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, "1111", resp.CardNumber)
	assert.Equal(t, "visa", resp.CardType)
	assert.NotZero(t, resp.RecordID)
	assert.Equal(t, int64(1), f.countRecords(t, paymentdomain.DirectionSale))

	history, err := f.recorder.History(context.Background(), "B-100")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, paymentdomain.OutcomeSuccess, history[0].Outcome)
	assert.Equal(t, `{"id":"txn_A"}`, string(history[0].RawPayload))
	assert.NotEqual(t, "tok_A", history[0].RequestSummary["payment_token"])
	stub.AssertExpectations(t)
}

func TestChargeUnsupportedCurrencyMakesNoCall(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	f := newFixture(t, stub)

	for _, currency := range []string{"XYZ", "EUR"} {
		_, err := f.processor.Charge(context.Background(), paymentdomain.ChargeRequest{
			BasketReference: "B-101",
			Amount:          money.Money{Amount: decimal.RequireFromString("49.99"), Currency: currency},
			PaymentToken:    "tok_B",
			GatewayName:     "stub",
		})
		var unsupported *paymentdomain.UnsupportedCurrencyError
		require.True(t, errors.As(err, &unsupported), "currency %s: %v", currency, err)
		assert.Equal(t, currency, unsupported.Currency)
	}

	assert.Equal(t, int64(0), f.countRecords(t, paymentdomain.DirectionSale))
	stub.AssertNotCalled(t, "Sale", mock.Anything, mock.Anything)

	stub.On("Sale", mock.Anything, withToken("tok_B")).
		Return(&paymentdomain.GatewayResult{Success: true, TransactionID: "txn_B", AmountMinor: 4999, Currency: "USD"}, nil).Once()
	_, err := f.processor.Charge(context.Background(), paymentdomain.ChargeRequest{
		BasketReference: "B-101",
		Amount:          money.MustParse("49.99", "USD"),
		PaymentToken:    "tok_B",
		GatewayName:     "stub",
	})
	require.NoError(t, err, "token must stay usable after a validation failure")
}

func TestChargeDeclineReturnsGatewayMessage(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Sale", mock.Anything, mock.Anything).Return(&paymentdomain.GatewayResult{
		Success:        false,
		TransactionID:  "txn_C",
		FailureMessage: "card declined",
		RawPayload:     []byte("<api-error-response>card declined</api-error-response>"),
	}, nil).Once()
	f := newFixture(t, stub)

	_, err := f.processor.Charge(context.Background(), paymentdomain.ChargeRequest{
		BasketReference: "B-102",
		Amount:          money.MustParse("10.00", "USD"),
		PaymentToken:    "tok_C",
	})
	var declined *paymentdomain.GatewayError
	require.True(t, errors.As(err, &declined))
	assert.Equal(t, "card declined", err.Error())
	assert.True(t, errors.Is(err, paymentdomain.ErrGatewayRejected))
	assert.NotZero(t, declined.RecordID)

	history, err := f.recorder.History(context.Background(), "B-102")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, paymentdomain.DirectionSale, history[0].Direction)
	assert.Equal(t, paymentdomain.OutcomeFailed, history[0].Outcome)
	assert.Equal(t, "<api-error-response>card declined</api-error-response>", string(history[0].RawPayload))
	require.NotNil(t, history[0].FailureMessage)
	assert.Equal(t, "card declined", *history[0].FailureMessage)
}

func TestChargeTimeoutIsAmbiguousAndTokenStaysClaimed(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Sale", mock.Anything, withToken("tok_E")).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, fmt.Errorf("%w: timeout: %v", paymentdomain.ErrGatewayUnavailable, context.DeadlineExceeded)).Once()
	stub.On("Sale", mock.Anything, withToken("tok_E2")).
		Return(&paymentdomain.GatewayResult{Success: true, TransactionID: "txn_E2", AmountMinor: 2500, Currency: "USD"}, nil).Once()
	f := newFixture(t, stub)
	ctx := context.Background()

	_, err := f.processor.Charge(ctx, paymentdomain.ChargeRequest{
		BasketReference: "B-103",
		Amount:          money.MustParse("25.00", "USD"),
		PaymentToken:    "tok_E",
		GatewayName:     "stub",
	})
	var ambiguous *paymentdomain.AmbiguousOutcomeError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, "ambiguous outcome, reconciliation required", err.Error())
	assert.True(t, errors.Is(err, paymentdomain.ErrGatewayUnavailable))
	assert.NotEmpty(t, ambiguous.AttemptID)

	history, err := f.recorder.History(ctx, "B-103")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, paymentdomain.OutcomeAmbiguous, history[0].Outcome)
	assert.Equal(t, ambiguous.RecordID, history[0].ID)

	resp, err := f.processor.Charge(ctx, paymentdomain.ChargeRequest{
		BasketReference: "B-103",
		Amount:          money.MustParse("25.00", "USD"),
		PaymentToken:    "tok_E2",
		GatewayName:     "stub",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn_E2", resp.TransactionID)

	_, err = f.processor.Charge(ctx, paymentdomain.ChargeRequest{
		BasketReference: "B-103",
		Amount:          money.MustParse("25.00", "USD"),
		PaymentToken:    "tok_E",
		GatewayName:     "stub",
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrDuplicateSubmission))
	stub.AssertNumberOfCalls(t, "Sale", 2)
	assert.Equal(t, int64(2), f.countRecords(t, paymentdomain.DirectionSale))
}

func TestChargeNotSentReleasesToken(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Sale", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: dial tcp: connection refused", paymentdomain.ErrRequestNotSent)).Once()
	stub.On("Sale", mock.Anything, mock.Anything).
		Return(&paymentdomain.GatewayResult{Success: true, TransactionID: "txn_F", AmountMinor: 100, Currency: "USD"}, nil).Once()
	f := newFixture(t, stub)
	req := paymentdomain.ChargeRequest{
		BasketReference: "B-104",
		Amount:          money.MustParse("1.00", "USD"),
		PaymentToken:    "tok_F",
		GatewayName:     "stub",
	}

	_, err := f.processor.Charge(context.Background(), req)
	require.True(t, errors.Is(err, paymentdomain.ErrRequestNotSent))
	assert.Equal(t, int64(0), f.countRecords(t, paymentdomain.DirectionSale))

	resp, err := f.processor.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "txn_F", resp.TransactionID)
	assert.Equal(t, int64(1), f.countRecords(t, paymentdomain.DirectionSale))
}

func TestChargeRecordsWhenCallerDeadlinePasses(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Sale", mock.Anything, withToken("tok_G")).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, context.DeadlineExceeded)).Once()
	f := newFixture(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.processor.Charge(ctx, paymentdomain.ChargeRequest{
		BasketReference: "B-105",
		Amount:          money.MustParse("12.00", "USD"),
		PaymentToken:    "tok_G",
		GatewayName:     "stub",
	})
	var ambiguous *paymentdomain.AmbiguousOutcomeError
	require.True(t, errors.As(err, &ambiguous), "got %v", err)

	history, err := f.recorder.History(context.Background(), "B-105")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, paymentdomain.OutcomeAmbiguous, history[0].Outcome)
	assert.Equal(t, ambiguous.RecordID, history[0].ID)
}

func TestRefundRecordsWhenCallerDeadlinePasses(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Refund", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, context.DeadlineExceeded)).Once()
	f := newFixture(t, stub)
	f.seedSale(t, "stub", "txn_G", money.MustParse("30.00", "USD"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_G",
		Amount:                money.MustParse("5.00", "USD"),
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrAmbiguousOutcome), "got %v", err)
	assert.Equal(t, int64(1), f.countRecords(t, paymentdomain.DirectionRefund))
}

func TestChargeLocallyRejectedTokenIsNotRecorded(t *testing.T) {
	adapter, err := razorpay.NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Name:       "stub",
		Currencies: []string{"INR"},
		Config:     map[string]any{"key_id": "rzp_test_1", "key_secret": "secret"},
	})
	require.NoError(t, err)
	f := newFixture(t, adapter)

	_, err = f.processor.Charge(context.Background(), paymentdomain.ChargeRequest{
		BasketReference: "B-106",
		Amount:          money.MustParse("100.00", "INR"),
		PaymentToken:    "tok_not_a_payment",
		GatewayName:     "stub",
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidRequest), "got %v", err)
	var ambiguous *paymentdomain.AmbiguousOutcomeError
	assert.False(t, errors.As(err, &ambiguous))
	assert.Equal(t, int64(0), f.countRecords(t, paymentdomain.DirectionSale))

	var claims int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM payment_token_claims`).Scan(&claims).Error)
	assert.Equal(t, int64(0), claims)
}

func TestChargeRejectsInvalidInput(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	f := newFixture(t, stub)
	ctx := context.Background()

	_, err := f.processor.Charge(ctx, paymentdomain.ChargeRequest{BasketReference: "B", Amount: money.MustParse("1", "USD")})
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidRequest))

	_, err = f.processor.Charge(ctx, paymentdomain.ChargeRequest{BasketReference: "B", PaymentToken: "t", Amount: money.MustParse("0", "USD")})
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidAmount))

	_, err = f.processor.Charge(ctx, paymentdomain.ChargeRequest{BasketReference: "B", PaymentToken: "t", Amount: money.MustParse("0.001", "USD")})
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidAmount))

	_, err = f.processor.Charge(ctx, paymentdomain.ChargeRequest{BasketReference: "B", PaymentToken: "t", Amount: money.MustParse("1", "USD"), GatewayName: "nope"})
	assert.True(t, errors.Is(err, paymentdomain.ErrProviderNotFound))

	stub.AssertNotCalled(t, "Sale", mock.Anything, mock.Anything)
	assert.Equal(t, int64(0), f.countRecords(t, paymentdomain.DirectionSale))
}

func TestRefundExceedingOriginalMakesNoCall(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	f := newFixture(t, stub)
	f.seedSale(t, "stub", "txn_D", money.MustParse("50.00", "USD"))

	_, err := f.refunds.Credit(context.Background(), paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_D",
		Amount:                money.MustParse("60.00", "USD"),
	})
	var exceeds *paymentdomain.RefundExceedsOriginalError
	require.True(t, errors.As(err, &exceeds))
	assert.True(t, exceeds.Refundable.Equal(money.MustParse("50.00", "USD")))
	stub.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	assert.Equal(t, int64(0), f.countRecords(t, paymentdomain.DirectionRefund))
}

func TestRefundCapIsCumulative(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Refund", mock.Anything, mock.MatchedBy(func(req paymentdomain.RefundCall) bool {
		return req.OriginalTransactionID == "txn_R" && req.Currency == "USD"
	})).Return(&paymentdomain.GatewayResult{Success: true, TransactionID: "rf_1", Currency: "USD"}, nil).Twice()
	f := newFixture(t, stub)
	f.seedSale(t, "stub", "txn_R", money.MustParse("50.00", "USD"))
	ctx := context.Background()

	first, err := f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_R",
		Amount:                money.MustParse("30.00", "USD"),
		OrderReference:        "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "rf_1", first.RefundTransactionID)
	assert.True(t, first.Amount.Equal(money.MustParse("30.00", "USD")))

	_, err = f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_R",
		Amount:                money.MustParse("30.00", "USD"),
	})
	var exceeds *paymentdomain.RefundExceedsOriginalError
	require.True(t, errors.As(err, &exceeds))
	assert.True(t, exceeds.Refundable.Equal(money.MustParse("20.00", "USD")))

	_, err = f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_R",
		Amount:                money.MustParse("20.00", "USD"),
	})
	require.NoError(t, err)
	stub.AssertNumberOfCalls(t, "Refund", 2)
	assert.Equal(t, int64(2), f.countRecords(t, paymentdomain.DirectionRefund))
}

func TestRefundRejectsUnknownTransactionAndCurrency(t *testing.T) {
	stub := newStubAdapter("stub", "USD", "EUR")
	f := newFixture(t, stub)
	f.seedSale(t, "stub", "txn_U", money.MustParse("50.00", "USD"))
	ctx := context.Background()

	_, err := f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_missing",
		Amount:                money.MustParse("1.00", "USD"),
	})
	var unknown *paymentdomain.UnknownTransactionError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "txn_missing", unknown.TransactionID)

	_, err = f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_U",
		Amount:                money.MustParse("1.00", "EUR"),
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrCurrencyMismatch))
	stub.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestRefundDeclineAndAmbiguous(t *testing.T) {
	stub := newStubAdapter("stub", "USD")
	stub.On("Refund", mock.Anything, mock.Anything).
		Return(&paymentdomain.GatewayResult{Success: false, FailureMessage: "Transaction has already been fully refunded."}, nil).Once()
	stub.On("Refund", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: status 502", paymentdomain.ErrGatewayUnavailable)).Once()
	f := newFixture(t, stub)
	f.seedSale(t, "stub", "txn_X", money.MustParse("50.00", "USD"))
	ctx := context.Background()

	_, err := f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_X",
		Amount:                money.MustParse("10.00", "USD"),
	})
	var declined *paymentdomain.GatewayError
	require.True(t, errors.As(err, &declined))
	assert.Equal(t, "Transaction has already been fully refunded.", declined.Message)

	_, err = f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_X",
		Amount:                money.MustParse("45.00", "USD"),
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrAmbiguousOutcome))
	assert.Equal(t, int64(2), f.countRecords(t, paymentdomain.DirectionRefund))

	// The unresolved refund still counts against the cap.
	_, err = f.refunds.Credit(ctx, paymentdomain.RefundRequest{
		OriginalTransactionID: "txn_X",
		Amount:                money.MustParse("10.00", "USD"),
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrRefundExceedsOriginal))
	stub.AssertNumberOfCalls(t, "Refund", 2)
}

func TestResolveAddress(t *testing.T) {
	withLookup := &addressAdapter{stubAdapter: newStubAdapter("stub", "USD")}
	withLookup.On("LookupAddress", mock.Anything, "tok_addr").Return(&paymentdomain.GatewayAddress{
		FullName:    "Ada King Lovelace",
		Line1:       "12 St James's Square",
		City:        "London",
		Postcode:    "SW1Y 4JH",
		CountryCode: "gb",
	}, nil)
	withLookup.On("LookupAddress", mock.Anything, "tok_mars").Return(&paymentdomain.GatewayAddress{
		FirstName:   "Mark",
		LastName:    "Watney",
		Line1:       "Acidalia Planitia",
		CountryCode: "ZZ",
	}, nil)
	withLookup.On("LookupAddress", mock.Anything, "tok_gone").
		Return(nil, &paymentdomain.AddressNotFoundError{Gateway: "stub", Reason: "token expired"})
	without := newStubAdapter("plain", "USD")
	f := newFixture(t, withLookup, without)
	ctx := context.Background()

	address, err := f.resolver.Resolve(ctx, "", "tok_addr")
	require.NoError(t, err)
	assert.Equal(t, "Ada", address.FirstName)
	assert.Equal(t, "King Lovelace", address.LastName)
	assert.Equal(t, "GB", address.CountryCode)
	assert.Equal(t, "United Kingdom", address.CountryName)
	assert.Equal(t, "SW1Y 4JH", address.Postcode)

	for _, tc := range []struct {
		gateway string
		token   string
	}{
		{"stub", "tok_mars"},
		{"stub", "tok_gone"},
		{"stub", ""},
		{"plain", "tok_addr"},
	} {
		_, err := f.resolver.Resolve(ctx, tc.gateway, tc.token)
		assert.True(t, errors.Is(err, paymentdomain.ErrAddressNotFound), "%s/%s: %v", tc.gateway, tc.token, err)
	}
}

func TestGenerateClientTokenRequiresCapability(t *testing.T) {
	f := newFixture(t, newStubAdapter("stub", "USD"))
	_, err := f.processor.GenerateClientToken(context.Background(), "stub")
	assert.True(t, errors.Is(err, paymentdomain.ErrCapabilityUnsupported))
}
