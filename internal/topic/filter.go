package topic

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// deliveryFilter wraps a compiled CEL program evaluated against each record
// before delivery. The zero value is disabled and matches everything.
type deliveryFilter struct {
	prog    cel.Program
	enabled bool
}

func newDeliveryFilter(expr string) (deliveryFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return deliveryFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("payload_type", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload for field-level filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return deliveryFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return deliveryFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return deliveryFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return deliveryFilter{}, err
	}
	return deliveryFilter{prog: prog, enabled: true}, nil
}

func (f deliveryFilter) match(env Envelope) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(env.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"payload_type": env.PayloadType,
		"ts_ms":        env.TimestampMs,
		"size":         int64(len(env.Payload)),
		"text":         string(env.Payload),
		"json":         jsonObj,
		"now_ms":       time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
