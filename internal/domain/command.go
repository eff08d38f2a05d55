package domain

import (
	"fmt"
	"strings"
)

// Action is what an order asks the engine to do with its active leg on the
// next tick.
type Action int

const (
	// ActionNone means the order has nothing pending, typically because
	// it is closed.
	ActionNone Action = iota
	// ActionHold keeps the active leg and polls it for updates.
	ActionHold
	// ActionNew places the active leg on the exchange.
	ActionNew
	// ActionCancel cancels the active leg.
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return ""
	case ActionHold:
		return "hold"
	case ActionNew:
		return "new"
	case ActionCancel:
		return "cancel"
	}
	return "unknown"
}

// DataRequest asks the engine to resolve a value before the next order
// update: a key naming the data source and optional parameters, e.g.
// {Key: "tickers", Params: ["ETH/BTC"]}.
type DataRequest struct {
	Key    string
	Params []string
}

// Path returns the request as a lookup path: key followed by parameters.
func (d DataRequest) Path() []string {
	return append([]string{d.Key}, d.Params...)
}

func (d DataRequest) String() string {
	return strings.Join(d.Path(), " ")
}

// Command is an order's instruction to the engine: the action for the
// active leg plus any data requests to resolve alongside it.
type Command struct {
	Action   Action
	Requests []DataRequest
}

// Convenience constructors for the common commands.
func Hold() Command    { return Command{Action: ActionHold} }
func New() Command     { return Command{Action: ActionNew} }
func Cancel() Command  { return Command{Action: ActionCancel} }
func NoneCmd() Command { return Command{Action: ActionNone} }

// WithRequest appends a data request to the command.
func (c Command) WithRequest(key string, params ...string) Command {
	c.Requests = append(c.Requests, DataRequest{Key: key, Params: params})
	return c
}

// String renders the command in its wire form:
// "ACTION[ KEY PARAMS[; KEY PARAMS]]", e.g. "cancel tickers ETH/BTC".
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Action.String())
	for i, r := range c.Requests {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(r.String())
	}
	return b.String()
}

// ParseCommand parses the wire form of a command. Empty input yields the
// none command. Blank data requests between delimiters are dropped.
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoneCmd(), nil
	}

	head, rest, _ := strings.Cut(s, " ")

	var c Command
	switch head {
	case "hold":
		c.Action = ActionHold
	case "new":
		c.Action = ActionNew
	case "cancel":
		c.Action = ActionCancel
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownAction, head)
	}

	for _, req := range strings.Split(rest, ";") {
		fields := strings.Fields(req)
		if len(fields) == 0 {
			continue
		}
		c.Requests = append(c.Requests, DataRequest{Key: fields[0], Params: fields[1:]})
	}
	return c, nil
}
