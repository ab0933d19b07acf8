package types

// Outcome is the terminal result class of a coordinated command
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRejected  Outcome = "rejected"
	OutcomeExhausted Outcome = "exhausted"
)

func (o Outcome) String() string {
	return string(o)
}
