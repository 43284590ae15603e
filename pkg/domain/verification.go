package domain

// PartyRole names a third-party verification slot. The combined role exists
// only when employer and reference share an email address.
type PartyRole string

const (
	RoleEmployer  PartyRole = "employer"
	RoleReference PartyRole = "reference"
	RoleCombined  PartyRole = "combined"
)

func (r PartyRole) String() string { return string(r) }

// VerificationStatus tracks a single party's verification signal.
type VerificationStatus string

const (
	VerificationNotSent  VerificationStatus = "not_sent"
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

func (s VerificationStatus) String() string { return string(s) }

// AggregateVerification is the request-level verification status recomputed
// from the per-party statuses after every update.
type AggregateVerification string

const (
	AggregateNone     AggregateVerification = "none"
	AggregatePending  AggregateVerification = "pending"
	AggregateVerified AggregateVerification = "verified"
	AggregateRejected AggregateVerification = "rejected"
)

func (a AggregateVerification) String() string { return string(a) }

// CombineVerification folds per-party statuses into the aggregate using the
// fixed precedence: any verified wins, else any rejected, else none when all
// parties are untouched, else pending.
func CombineVerification(statuses ...VerificationStatus) AggregateVerification {
	if len(statuses) == 0 {
		return AggregateNone
	}
	anyRejected := false
	allNotSent := true
	for _, s := range statuses {
		switch s {
		case VerificationVerified:
			return AggregateVerified
		case VerificationRejected:
			anyRejected = true
			allNotSent = false
		case VerificationPending:
			allNotSent = false
		}
	}
	if anyRejected {
		return AggregateRejected
	}
	if allNotSent {
		return AggregateNone
	}
	return AggregatePending
}
