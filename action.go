package patternbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/saylorsolutions/patternbus/pattern"
)

var (
	ErrNotAction = errors.New("payload is not an action")
)

// Action is the envelope for a command sent with [Bus.SendCommand].
// Once the command is handled, a copy with the result or error is broadcast as an event on the same pattern.
type Action struct {
	ID      string
	Pattern pattern.Pattern
	Payload any
	Result  any
	Error   error
}

// NewAction creates an [Action] with a new unique ID.
func NewAction(p pattern.Pattern, payload any) *Action {
	return &Action{
		ID:      uuid.NewString(),
		Pattern: p.Clone(),
		Payload: payload,
	}
}

// WithResult returns a copy of the action that completed with res.
func (a *Action) WithResult(res any) *Action {
	completed := *a
	completed.Result = res
	completed.Error = nil
	return &completed
}

// WithError returns a copy of the action that failed with err.
func (a *Action) WithError(err error) *Action {
	completed := *a
	completed.Result = nil
	completed.Error = err
	return &completed
}

// ActionError is the serializable form of an [Action] error.
type ActionError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *ActionError) Error() string {
	return e.Message
}

func newActionError(err error) *ActionError {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr
	}
	name := "Error"
	if t := reflect.TypeOf(err); t != nil {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if len(t.Name()) > 0 {
			name = t.Name()
		}
	}
	return &ActionError{Name: name, Message: err.Error()}
}

type actionJSON struct {
	ID      string          `json:"id"`
	Pattern pattern.Pattern `json:"pattern"`
	Payload any             `json:"payload"`
	Result  any             `json:"result,omitempty"`
	Error   *ActionError    `json:"error,omitempty"`
}

func (a *Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{
		ID:      a.ID,
		Pattern: a.Pattern,
		Payload: a.Payload,
		Result:  a.Result,
	}
	if a.Error != nil {
		out.Error = newActionError(a.Error)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an action, with any error as an [ActionError].
func (a *Action) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*a = Action{
		ID:      in.ID,
		Pattern: in.Pattern,
		Payload: in.Payload,
		Result:  in.Result,
	}
	if in.Error != nil {
		a.Error = in.Error
	}
	return nil
}

// toAction recovers an [Action] from a payload, which may have been copied through JSON by a transport.
func toAction(payload any) (*Action, error) {
	switch action := payload.(type) {
	case *Action:
		if action == nil {
			return nil, ErrNotAction
		}
		return action, nil
	case Action:
		return &action, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAction, err)
	}
	var action Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAction, err)
	}
	if len(action.ID) == 0 {
		return nil, fmt.Errorf("%w: missing id", ErrNotAction)
	}
	return &action, nil
}
