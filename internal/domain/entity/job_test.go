package entity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *Job {
	j := &Job{ID: "m1", CustomerID: "C", WorkerID: "W", Status: JobAwaitingPayment}
	j.SetPrice(5000)
	return j
}

func TestSetPriceKeepsTotalInvariant(t *testing.T) {
	for _, price := range []float64{0, 1, 4, 5, 15, 999, 5000, 1234567, 0.5, 12.34} {
		j := &Job{}
		j.SetPrice(price)
		assert.Equal(t, math.Round(price*0.10), j.ServiceFee, "price %v", price)
		assert.Equal(t, j.Price+j.ServiceFee, j.TotalAmount, "price %v", price)
	}

	j := newTestJob()
	assert.Equal(t, 500.0, j.ServiceFee)
	assert.Equal(t, 5500.0, j.TotalAmount)
	minor, err := j.TotalMinorUnits()
	require.NoError(t, err)
	assert.Equal(t, int64(550000), minor)
}

func TestValidateAmount(t *testing.T) {
	for _, amount := range []float64{MinProposalAmount, 1, 5000, MaxProposalAmount} {
		assert.NoError(t, ValidateAmount(amount), "amount %v", amount)
	}
	for _, amount := range []float64{0, -1, 0.001, 0.009, MaxProposalAmount + 1, 1e17, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, ValidateAmount(amount), ErrAmountOutOfRange, "amount %v", amount)
	}
}

func TestTotalMinorUnitsRange(t *testing.T) {
	j := &Job{}
	j.SetPrice(MaxProposalAmount)
	minor, err := j.TotalMinorUnits()
	require.NoError(t, err)
	assert.Equal(t, int64(110_000_000_000), minor)

	j.SetPrice(MinProposalAmount)
	minor, err = j.TotalMinorUnits()
	require.NoError(t, err)
	assert.Equal(t, int64(1), minor)

	for _, price := range []float64{0, 0.001, 1e17, 1e300, math.Inf(1)} {
		j.SetPrice(price)
		_, err := j.TotalMinorUnits()
		assert.ErrorIs(t, err, ErrAmountOutOfRange, "price %v", price)
	}
}

func TestApplyHappyPath(t *testing.T) {
	j := newTestJob()
	now := time.Now()

	changed, err := j.Apply(EventCapturePayment, "C", "ref-1", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, JobPaymentSecured, j.Status)
	require.NotNil(t, j.PaidAt)
	assert.Equal(t, "ref-1", j.PaymentReference)

	changed, err = j.Apply(EventComplete, "C", "", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, JobCompleted, j.Status)
	assert.NotNil(t, j.CompletedAt)
}

func TestApplyDuplicateCaptureIsNoop(t *testing.T) {
	j := newTestJob()
	_, err := j.Apply(EventCapturePayment, "C", "", time.Now())
	require.NoError(t, err)
	paidAt := *j.PaidAt

	changed, err := j.Apply(EventCapturePayment, "C", "", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, paidAt, *j.PaidAt)
}

func TestApplyLateDuplicateCaptureIsNoop(t *testing.T) {
	for _, next := range []JobEvent{EventComplete, EventDispute} {
		j := newTestJob()
		_, err := j.Apply(EventCapturePayment, "C", "ref-1", time.Now())
		require.NoError(t, err)
		_, err = j.Apply(next, "C", "", time.Now())
		require.NoError(t, err)
		status := j.Status

		changed, err := j.Apply(EventCapturePayment, "C", "ref-1", time.Now())
		require.NoError(t, err, "capture after %s", next)
		assert.False(t, changed)
		assert.Equal(t, status, j.Status)
	}
}

func TestApplyGuards(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		event  JobEvent
		actor  string
		want   error
	}{
		{"worker cannot capture payment", JobAwaitingPayment, EventCapturePayment, "W", ErrJobActorNotAllowed},
		{"worker cannot complete", JobPaymentSecured, EventComplete, "W", ErrJobActorNotAllowed},
		{"stranger cannot dispute", JobPaymentSecured, EventDispute, "X", ErrJobActorNotAllowed},
		{"complete requires payment", JobAwaitingPayment, EventComplete, "C", ErrJobTransitionNotAllowed},
		{"cannot cancel after payment", JobPaymentSecured, EventCancel, "W", ErrJobTransitionNotAllowed},
		{"completed is terminal", JobCompleted, EventDispute, "C", ErrJobTransitionNotAllowed},
		{"cancelled is terminal", JobCancelled, EventCapturePayment, "C", ErrJobTransitionNotAllowed},
		{"disputed freezes capture", JobDisputed, EventCapturePayment, "C", ErrJobTransitionNotAllowed},
		{"unknown event", JobAwaitingPayment, JobEvent("refund"), "C", ErrUnknownJobEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJob()
			j.Status = tt.status
			changed, err := j.Apply(tt.event, tt.actor, "", time.Now())
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, changed)
			assert.Equal(t, tt.status, j.Status)
		})
	}
}

func TestEitherPartyMayDisputeOrCancel(t *testing.T) {
	j := newTestJob()
	_, err := j.Apply(EventCancel, "W", "changed my mind", time.Now())
	require.NoError(t, err)
	assert.Equal(t, JobCancelled, j.Status)
	assert.Equal(t, "W", j.CancelledBy)
	assert.Equal(t, "changed my mind", j.CancellationReason)

	j = newTestJob()
	_, err = j.Apply(EventDispute, "C", "no show", time.Now())
	require.NoError(t, err)
	assert.Equal(t, JobDisputed, j.Status)
	assert.True(t, j.Status.IsTerminal())
}

// Every reachable status sequence is a prefix of
// AwaitingPayment -> PaymentSecured -> Completed, optionally diverting once.
func TestLifecycleIsMonotonic(t *testing.T) {
	events := []JobEvent{EventCapturePayment, EventComplete, EventDispute, EventCancel}
	actors := []string{"C", "W"}
	rank := map[JobStatus]int{JobAwaitingPayment: 0, JobPaymentSecured: 1, JobCompleted: 2, JobDisputed: 3, JobCancelled: 3}

	var walk func(j *Job, depth int)
	walk = func(j *Job, depth int) {
		if depth == 0 {
			return
		}
		for _, ev := range events {
			for _, actor := range actors {
				next := *j
				before := next.Status
				changed, err := next.Apply(ev, actor, "", time.Now())
				if err != nil || !changed {
					assert.Equal(t, before, next.Status)
					continue
				}
				assert.Greater(t, rank[next.Status], rank[before], "%s -> %s", before, next.Status)
				if before.IsTerminal() {
					t.Fatalf("left terminal status %s", before)
				}
				walk(&next, depth-1)
			}
		}
	}
	walk(newTestJob(), 4)
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "Fix sink", TitleFrom("  Fix sink "))
	long := "Fix leaking kitchen sink and replace faucet, then check the bathroom pipes too"
	title := TitleFrom(long)
	assert.True(t, len([]rune(title)) <= 61)
	assert.Contains(t, title, "…")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "500", FormatAmount(500))
	assert.Equal(t, "5,000", FormatAmount(5000))
	assert.Equal(t, "1,234,567", FormatAmount(1234567))
	assert.Equal(t, "-1,000", FormatAmount(-1000))
}
