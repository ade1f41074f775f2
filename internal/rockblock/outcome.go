package rockblock

import (
	"net/http"

	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

// State is a step of envelope handling.
type State string

const (
	StateReceived           State = "received"
	StateAuthorized         State = "authorized"
	StateClassified         State = "classified"
	StateConfigHandled      State = "config_handled"
	StateBootHandled        State = "boot_handled"
	StateTelemetryProcessed State = "telemetry_processed"
	StateRejected           State = "rejected"
	StateResponded          State = "responded"
)

// OutcomeKind classifies the result of handling one envelope.
type OutcomeKind string

const (
	OutcomeForbidden  OutcomeKind = "forbidden"
	OutcomeInvalid    OutcomeKind = "invalid"
	OutcomeIncomplete OutcomeKind = "incomplete"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeConfig     OutcomeKind = "config"
	OutcomeBoot       OutcomeKind = "boot"
	OutcomeTelemetry  OutcomeKind = "telemetry"
)

// Response texts, part of the webhook contract.
const (
	ReasonForbidden           = "Forbidden"
	ReasonInvalid             = "Invalid rockblock message"
	ReasonFailed              = "Error handling rockblock message"
	ReasonConfig              = "Config message received"
	ReasonBoot                = "Bootup message received"
	ReasonMissingBoth         = "Attitude and Global Position Int not set"
	ReasonMissingAttitude     = "Attitude not set"
	ReasonMissingGlobalPosInt = "Global Position Int not set"
)

// Outcome is the result of handling one envelope. Exactly one of Reason and
// Record is the response body.
type Outcome struct {
	Kind      OutcomeKind
	Status    int
	Reason    string
	Record    *telemetry.Record
	VehicleID string
	Path      []State // states visited, ending in StateResponded
	Err       error   // internal cause of OutcomeFailed, never sent to the client
}

// OK reports whether the envelope was accepted.
func (o *Outcome) OK() bool {
	return o.Status == http.StatusOK
}

type run struct {
	path []State
}

func (r *run) enter(s State) {
	r.path = append(r.path, s)
}

func (r *run) finish(o Outcome) Outcome {
	if o.Kind != OutcomeConfig && o.Kind != OutcomeBoot && o.Kind != OutcomeTelemetry {
		r.enter(StateRejected)
	}
	r.enter(StateResponded)
	o.Path = r.path
	return o
}

func reject(kind OutcomeKind, status int, reason string) Outcome {
	return Outcome{Kind: kind, Status: status, Reason: reason}
}
