// Package filter evaluates expr expressions against the reconciled entity
// lists. Compiled programs are kept in an LRU cache, the same filter is
// typically re-run on every refresh.
package filter

import (
	"strconv"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/types"
)

const programCacheSize = 128

var programCache *lru.Cache

func init() {
	programCache, _ = lru.New(programCacheSize)
}

// AsInt parses a raw protocol field as an int, 0 on error
func AsInt(v string) int64 {
	val, _ := strconv.ParseInt(v, 0, 64)
	return val
}

// AsFloat parses a raw protocol field as a float64, 0.0 on error
func AsFloat(v string) float64 {
	val, _ := strconv.ParseFloat(v, 64)
	return val
}

func compile(kind, expression string, env interface{}) (*vm.Program, error) {
	key := kind + "\x00" + expression
	if cached, ok := programCache.Get(key); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, err
	}
	programCache.Add(key, prog)
	return prog, nil
}

func participantEnv(p types.Participant) ParticipantEnv {
	env := ParticipantEnv{
		Channel:      p.Channel,
		Room:         p.Room,
		CallerNumber: p.CallerNumber,
		CallerName:   p.CallerName,
		IsAdmin:      p.IsAdmin,
		IsMarked:     p.IsMarked,
		IsMuted:      p.IsMuted,
		IsTalking:    p.IsTalking,
		IsOnHold:     p.IsOnHold,
		IsSelf:       p.IsSelf,
		AsInt:        AsInt,
		AsFloat:      AsFloat,
	}
	if p.AudioLevel != nil {
		env.AudioLevel = *p.AudioLevel
		env.HasLevel = true
	}
	return env
}

func endpointEnv(e types.Endpoint) EndpointEnv {
	return EndpointEnv{
		Id:          e.Id,
		DeviceState: e.DeviceState,
		Transport:   e.Transport,
		Online:      e.Online(),
		Contacts:    len(e.ContactUris),
		Raw:         e.Raw,
		AsInt:       AsInt,
		AsFloat:     AsFloat,
	}
}

// MatchParticipant reports whether the participant satisfies the expression.
// A non-boolean result counts as no match.
func MatchParticipant(p types.Participant, expression string) (bool, error) {
	prog, err := compile("participant", expression, ParticipantEnv{})
	if err != nil {
		return false, err
	}
	res, err := expr.Run(prog, participantEnv(p))
	if err != nil {
		globals.AppLogger.Error("could not run participant filter", "error", err)
		return false, err
	}
	bRes, ok := res.(bool)
	return ok && bRes, nil
}

// Participants returns the participants satisfying the expression. The first
// compile error aborts, run errors only drop the affected entity.
func Participants(list []types.Participant, expression string) ([]types.Participant, error) {
	prog, err := compile("participant", expression, ParticipantEnv{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Participant, 0, len(list))
	for _, p := range list {
		res, err := expr.Run(prog, participantEnv(p))
		if err != nil {
			globals.AppLogger.Error("could not run participant filter", "error", err)
			continue
		}
		if bRes, ok := res.(bool); ok && bRes {
			out = append(out, p)
		}
	}
	return out, nil
}

// Endpoints returns the endpoints satisfying the expression.
func Endpoints(list []types.Endpoint, expression string) ([]types.Endpoint, error) {
	prog, err := compile("endpoint", expression, EndpointEnv{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Endpoint, 0, len(list))
	for _, e := range list {
		res, err := expr.Run(prog, endpointEnv(e))
		if err != nil {
			globals.AppLogger.Error("could not run endpoint filter", "error", err)
			continue
		}
		if bRes, ok := res.(bool); ok && bRes {
			out = append(out, e)
		}
	}
	return out, nil
}
