package entity

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "workbee/pkg/errors"
)

type JobStatus string

const (
	JobAwaitingPayment JobStatus = "AwaitingPayment"
	JobPaymentSecured  JobStatus = "PaymentSecured"
	JobCompleted       JobStatus = "Completed"
	JobDisputed        JobStatus = "Disputed"
	JobCancelled       JobStatus = "Cancelled"
)

// ServiceFeeRate is the platform fee charged on top of the agreed price.
const ServiceFeeRate = 0.10

const maxTitleLength = 60

// Proposal amounts are whole-unit prices. The minimum is one minor unit and
// the maximum keeps the total well inside int64 minor units.
const (
	MinProposalAmount = 0.01
	MaxProposalAmount = 1_000_000_000
)

type Job struct {
	ID             string    `json:"id" firestore:"id"` // equals the originating proposal message id
	Title          string    `json:"title" firestore:"title"`
	CustomerID     string    `json:"customer_id" firestore:"customerId"`
	WorkerID       string    `json:"worker_id" firestore:"workerId"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	Description    string    `json:"description" firestore:"description"`
	Price          float64   `json:"price" firestore:"price"`
	ServiceFee     float64   `json:"service_fee" firestore:"serviceFee"`
	TotalAmount    float64   `json:"total_amount" firestore:"totalAmount"`
	Currency       string    `json:"currency" firestore:"currency"`
	Status         JobStatus `json:"status" firestore:"status"`

	PaymentReference   string `json:"payment_reference,omitempty" firestore:"paymentReference,omitempty"`
	DisputeReason      string `json:"dispute_reason,omitempty" firestore:"disputeReason,omitempty"`
	DisputedBy         string `json:"disputed_by,omitempty" firestore:"disputedBy,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty" firestore:"cancellationReason,omitempty"`
	CancelledBy        string `json:"cancelled_by,omitempty" firestore:"cancelledBy,omitempty"`

	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time  `json:"updated_at" firestore:"updatedAt"`
	PaidAt      *time.Time `json:"paid_at,omitempty" firestore:"paidAt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty" firestore:"disputedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" firestore:"cancelledAt,omitempty"`
}

// JobLog is one audit entry per applied transition.
type JobLog struct {
	ID        string    `json:"id" firestore:"id"`
	JobID     string    `json:"job_id" firestore:"jobId"`
	Event     JobEvent  `json:"event" firestore:"event"`
	From      JobStatus `json:"from" firestore:"from"`
	To        JobStatus `json:"to" firestore:"to"`
	ActorID   string    `json:"actor_id" firestore:"actorId"`
	Note      string    `json:"note,omitempty" firestore:"note,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// ServiceFeeFor rounds the fee to the nearest whole currency unit.
func ServiceFeeFor(price float64) float64 {
	return math.Round(price * ServiceFeeRate)
}

// SetPrice stores the price and recomputes fee and total. TotalAmount is never
// written anywhere else.
func (j *Job) SetPrice(price float64) {
	j.Price = price
	j.ServiceFee = ServiceFeeFor(price)
	j.TotalAmount = j.Price + j.ServiceFee
}

// ValidateAmount rejects prices that cannot be charged as at least one minor unit.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || amount < MinProposalAmount || amount > MaxProposalAmount {
		return ErrAmountOutOfRange
	}
	return nil
}

// TotalMinorUnits is the total in kobo (or cents) as payment gateways expect.
// Totals that round to zero or do not fit in an int64 are rejected.
func (j *Job) TotalMinorUnits() (int64, error) {
	minor := math.Round(j.TotalAmount * 100)
	if math.IsNaN(minor) || minor < 1 || minor >= float64(math.MaxInt64) {
		return 0, ErrAmountOutOfRange
	}
	return int64(minor), nil
}

func (j *Job) IsParty(userID string) bool {
	return userID != "" && (userID == j.CustomerID || userID == j.WorkerID)
}

// TitleFrom derives a job title from the proposal description.
func TitleFrom(description string) string {
	d := strings.TrimSpace(description)
	if utf8.RuneCountInString(d) <= maxTitleLength {
		return d
	}
	runes := []rune(d)
	return strings.TrimSpace(string(runes[:maxTitleLength])) + "…"
}

type JobEvent string

const (
	EventCapturePayment JobEvent = "capture_payment"
	EventComplete       JobEvent = "complete"
	EventDispute        JobEvent = "dispute"
	EventCancel         JobEvent = "cancel"
)

var (
	ErrJobTransitionNotAllowed = apperrors.InvalidTransition("Job cannot make this transition from its current status")
	ErrJobActorNotAllowed      = apperrors.InvalidTransition("You are not allowed to perform this action on the job")
	ErrUnknownJobEvent         = apperrors.Validation("Unknown job event")
	ErrAmountOutOfRange        = apperrors.Validation("Amount must be between 0.01 and 1,000,000,000")
)

type actorRule int

const (
	customerOnly actorRule = iota
	eitherParty
)

type jobTransition struct {
	from  []JobStatus
	to    JobStatus
	actor actorRule
}

var jobTransitions = map[JobEvent]jobTransition{
	EventCapturePayment: {from: []JobStatus{JobAwaitingPayment}, to: JobPaymentSecured, actor: customerOnly},
	EventComplete:       {from: []JobStatus{JobPaymentSecured}, to: JobCompleted, actor: customerOnly},
	EventDispute:        {from: []JobStatus{JobAwaitingPayment, JobPaymentSecured}, to: JobDisputed, actor: eitherParty},
	EventCancel:         {from: []JobStatus{JobAwaitingPayment}, to: JobCancelled, actor: eitherParty},
}

// IsTerminal reports whether no further transitions are possible from this
// subsystem. Disputed counts as terminal: resolution happens out of band.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobDisputed
}

// Apply runs the job state machine. changed is false when the event is a
// duplicate payment capture, which is any capture on a job already paid.
func (j *Job) Apply(event JobEvent, actorID, note string, at time.Time) (changed bool, err error) {
	t, ok := jobTransitions[event]
	if !ok {
		return false, ErrUnknownJobEvent
	}

	switch t.actor {
	case customerOnly:
		if actorID != j.CustomerID {
			return false, ErrJobActorNotAllowed
		}
	case eitherParty:
		if !j.IsParty(actorID) {
			return false, ErrJobActorNotAllowed
		}
	}

	if event == EventCapturePayment && j.PaidAt != nil {
		return false, nil
	}

	allowed := false
	for _, from := range t.from {
		if j.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, ErrJobTransitionNotAllowed
	}

	ts := at
	switch event {
	case EventCapturePayment:
		j.PaidAt = &ts
		if note != "" {
			j.PaymentReference = note
		}
	case EventComplete:
		j.CompletedAt = &ts
	case EventDispute:
		j.DisputedAt = &ts
		j.DisputedBy = actorID
		j.DisputeReason = note
	case EventCancel:
		j.CancelledAt = &ts
		j.CancelledBy = actorID
		j.CancellationReason = note
	}
	j.Status = t.to
	j.UpdatedAt = at
	return true, nil
}

// FormatAmount renders a whole-unit amount with thousand separators.
func FormatAmount(amount float64) string {
	str := strconv.FormatFloat(amount, 'f', 0, 64)
	negative := strings.HasPrefix(str, "-")
	if negative {
		str = str[1:]
	}

	n := len(str)
	if n <= 3 {
		if negative {
			return "-" + str
		}
		return str
	}

	var result strings.Builder
	if negative {
		result.WriteString("-")
	}
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return result.String()
}
