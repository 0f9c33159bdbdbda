package confirmation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/jito"
	jitostub "solana-dispatch/internal/jito/stub"
	"solana-dispatch/internal/solana"
	"solana-dispatch/internal/solana/stub"
)

func newTestTracker(opts Options) *Tracker {
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	return NewTracker(opts)
}

func sendOne(t *testing.T, client *stub.RPCClient) string {
	t.Helper()
	tx := make([]byte, 100)
	tx[0] = 1
	tx[1] = 7
	sig, err := client.SendTransaction(context.Background(), tx, nil)
	require.NoError(t, err)
	return sig
}

func TestTrack_Confirmed(t *testing.T) {
	client := stub.NewRPCClient()
	sig := sendOne(t, client)

	submitted := time.Now().Add(-120 * time.Millisecond)
	out := newTestTracker(Options{}).Track(context.Background(), client, sig, submitted, time.Second)

	assert.Equal(t, domain.StatusConfirmed, out.Status)
	assert.Equal(t, sig, out.Signature)
	assert.Equal(t, int64(1000), out.Slot)
	assert.GreaterOrEqual(t, out.ConfirmationTimeMs, int64(120))
	assert.NoError(t, out.Err)
}

func TestTrack_WaitsForCommitment(t *testing.T) {
	var polls atomic.Int32
	client := stub.NewRPCClient()
	client.StatusFunc = func(string) *solana.SignatureStatus {
		if polls.Add(1) < 3 {
			return &solana.SignatureStatus{Slot: 5, ConfirmationStatus: solana.CommitmentProcessed}
		}
		return &solana.SignatureStatus{Slot: 6, ConfirmationStatus: solana.CommitmentConfirmed}
	}

	out := newTestTracker(Options{}).Track(context.Background(), client, "sig", time.Now(), time.Second)

	assert.Equal(t, domain.StatusConfirmed, out.Status)
	assert.Equal(t, int64(6), out.Slot)
	assert.Equal(t, int32(3), polls.Load())
}

func TestTrack_FinalizedCommitment(t *testing.T) {
	client := stub.NewRPCClient()
	sig := sendOne(t, client)

	tracker := newTestTracker(Options{Commitment: solana.CommitmentFinalized})
	out := tracker.Track(context.Background(), client, sig, time.Now(), 30*time.Millisecond)

	assert.Equal(t, domain.StatusTimedOut, out.Status)
	assert.Equal(t, domain.ErrKindConfirmationTimeout, out.ErrKind)
}

func TestTrack_OnChainFailure(t *testing.T) {
	client := stub.NewRPCClient()
	client.StatusFunc = func(string) *solana.SignatureStatus {
		return &solana.SignatureStatus{
			Slot:               9,
			Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			ConfirmationStatus: solana.CommitmentConfirmed,
		}
	}

	out := newTestTracker(Options{}).Track(context.Background(), client, "sig", time.Now(), time.Second)

	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.Equal(t, domain.ErrKindTransaction, out.ErrKind)
	assert.ErrorIs(t, out.Err, domain.ErrTransactionRejected)
}

func TestTrack_Timeout(t *testing.T) {
	client := stub.NewRPCClient()

	start := time.Now()
	out := newTestTracker(Options{}).Track(context.Background(), client, "unknown", start, 40*time.Millisecond)

	assert.Equal(t, domain.StatusTimedOut, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrConfirmationTimeout)
	assert.GreaterOrEqual(t, client.Calls("getSignatureStatuses"), 2)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTrack_PollErrorsAreRetried(t *testing.T) {
	client := stub.NewRPCClient()
	client.StatusErr = errors.New("connection reset")

	out := newTestTracker(Options{}).Track(context.Background(), client, "sig", time.Now(), 30*time.Millisecond)

	assert.Equal(t, domain.StatusTimedOut, out.Status)
	assert.GreaterOrEqual(t, client.Calls("getSignatureStatuses"), 2)
}

func TestTrack_DefaultTimeout(t *testing.T) {
	tracker := NewTracker(Options{})
	assert.Equal(t, DefaultTimeout, tracker.timeout)
	assert.Equal(t, DefaultBundleTimeout, tracker.bundleTimeout)
	assert.Equal(t, solana.CommitmentConfirmed, tracker.Commitment())
}

type fakeWS struct {
	notify solana.SignatureNotification
	err    error
}

func (f *fakeWS) SignatureSubscribe(_ context.Context, signature string, _ solana.Commitment) (<-chan solana.SignatureNotification, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan solana.SignatureNotification, 1)
	n := f.notify
	n.Signature = signature
	ch <- n
	close(ch)
	return ch, nil
}

func (f *fakeWS) Close() error { return nil }

func TestTrack_WebsocketNotification(t *testing.T) {
	client := stub.NewRPCClient()
	client.StatusFunc = func(string) *solana.SignatureStatus { return nil }

	ws := &fakeWS{notify: solana.SignatureNotification{Slot: 77}}
	out := newTestTracker(Options{PollInterval: time.Hour}).
		Track(context.Background(), client, "sig", time.Now(), time.Second, WithSubscriber(ws))

	assert.Equal(t, domain.StatusConfirmed, out.Status)
	assert.Equal(t, int64(77), out.Slot)
}

func TestTrack_WebsocketFailureNotification(t *testing.T) {
	client := stub.NewRPCClient()
	client.StatusFunc = func(string) *solana.SignatureStatus { return nil }

	ws := &fakeWS{notify: solana.SignatureNotification{Slot: 78, Err: "InsufficientFundsForRent"}}
	out := newTestTracker(Options{PollInterval: time.Hour}).
		Track(context.Background(), client, "sig", time.Now(), time.Second, WithSubscriber(ws))

	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrTransactionRejected)
}

func TestTrack_SubscribeErrorFallsBackToPolling(t *testing.T) {
	client := stub.NewRPCClient()
	sig := sendOne(t, client)

	out := newTestTracker(Options{}).
		Track(context.Background(), client, sig, time.Now(), time.Second, WithSubscriber(&fakeWS{err: errors.New("dial failed")}))

	assert.Equal(t, domain.StatusConfirmed, out.Status)
}

func TestTrackBundle_Landed(t *testing.T) {
	engine := jitostub.NewEngine()

	out := newTestTracker(Options{}).TrackBundle(context.Background(), engine, "bundle-1", time.Now(), time.Second)

	assert.True(t, out.Landed())
	assert.Equal(t, int64(2000), out.Slot)
	assert.NoError(t, out.Err)
}

func TestTrackBundle_Rejected(t *testing.T) {
	for _, status := range []jito.BundleStatus{jito.BundleFailed, jito.BundleInvalid} {
		t.Run(string(status), func(t *testing.T) {
			engine := jitostub.NewEngine()
			engine.Status = status

			out := newTestTracker(Options{}).TrackBundle(context.Background(), engine, "bundle-1", time.Now(), time.Second)

			assert.False(t, out.Landed())
			assert.ErrorIs(t, out.Err, domain.ErrBundleRejected)
			assert.Equal(t, domain.ErrKindBundleRejected, domain.KindOf(out.Err))
		})
	}
}

func TestTrackBundle_Timeout(t *testing.T) {
	engine := jitostub.NewEngine()
	engine.Status = jito.BundlePending

	out := newTestTracker(Options{}).TrackBundle(context.Background(), engine, "bundle-1", time.Now(), 30*time.Millisecond)

	assert.False(t, out.Landed())
	assert.Equal(t, jito.BundlePending, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrBundleRejected)
}

func TestTrack_CallerCancelIsNotTimeout(t *testing.T) {
	client := stub.NewRPCClient()
	client.StatusFunc = func(string) *solana.SignatureStatus { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := newTestTracker(Options{}).Track(ctx, client, "sig", time.Now(), time.Minute)

	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.Equal(t, domain.ErrKindSubmission, out.ErrKind)
	assert.ErrorIs(t, out.Err, domain.ErrSubmission)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.NotErrorIs(t, out.Err, domain.ErrConfirmationTimeout)
}

// silentWS acknowledges subscriptions but never notifies.
type silentWS struct {
	ctx context.Context
}

func (s *silentWS) SignatureSubscribe(ctx context.Context, _ string, _ solana.Commitment) (<-chan solana.SignatureNotification, error) {
	s.ctx = ctx
	return make(chan solana.SignatureNotification), nil
}

func (s *silentWS) Close() error { return nil }

func TestTrack_SubscriptionEndsWithTrack(t *testing.T) {
	client := stub.NewRPCClient()
	sig := sendOne(t, client)
	ws := &silentWS{}

	out := newTestTracker(Options{}).Track(context.Background(), client, sig, time.Now(), time.Second, WithSubscriber(ws))

	assert.Equal(t, domain.StatusConfirmed, out.Status)
	require.NotNil(t, ws.ctx)
	assert.Error(t, ws.ctx.Err())
}
