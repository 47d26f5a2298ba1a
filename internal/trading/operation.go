package trading

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/domain"
)

// transitions lists the legal next states of each state.
var transitions = map[domain.OperationState][]domain.OperationState{
	domain.StateIdle:                 {domain.StateSubmitting, domain.StateFailed},
	domain.StateSubmitting:           {domain.StateAwaitingConfirmation, domain.StateFailed},
	domain.StateAwaitingConfirmation: {domain.StateDecoding, domain.StateFailed},
	domain.StateDecoding:             {domain.StateDone, domain.StateFailed},
}

// operation drives one TradingOperation through the state machine.
type operation struct {
	domain.TradingOperation
	logger *logrus.Entry
}

func newOperation(kind domain.OperationKind, token string, amount uint64, slippageBps uint16, now time.Time, logger *logrus.Entry) *operation {
	id := uuid.NewString()
	return &operation{
		TradingOperation: domain.TradingOperation{
			ID:              id,
			Kind:            kind,
			TokenAddress:    token,
			AmountRequested: amount,
			SlippageBps:     slippageBps,
			State:           domain.StateIdle,
			StartedAt:       now,
		},
		logger: logger.WithFields(logrus.Fields{"op": id, "kind": kind, "token": token}),
	}
}

func legal(from, to domain.OperationState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves to the next state. An illegal move is a programming
// error: it is logged and the operation ends failed. Reports whether the
// move was legal.
func (o *operation) transition(to domain.OperationState) bool {
	from := o.State
	if !legal(from, to) {
		o.logger.WithFields(logrus.Fields{"from": from, "to": to}).Error("illegal state transition")
		o.State = domain.StateFailed
		o.Outcome = "illegal transition " + string(from) + " -> " + string(to)
		return false
	}
	o.State = to
	o.logger.WithField("state", to).Debug("state changed")
	return true
}

// fail ends the operation with err unless it already ended.
func (o *operation) fail(err error) {
	if o.State.Terminal() {
		return
	}
	o.State = domain.StateFailed
	o.Outcome = err.Error()
}
