// Package exprctx implements the pure line-translation function shared
// by Feeder and Sender: comment stripping, `%expr` assignment, and
// `[expr]` substitution against an ExpressionContext. It is grounded on
// the teacher's rule engine (internal/engine/workflow.go evaluateRule),
// which compiles and runs an expression string with
// github.com/antonmedv/expr against a map[string]interface{} env; here
// the same compile/run pair backs G-code expression substitution
// instead of workflow-step skip rules.
package exprctx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antonmedv/expr"

	"github.com/cheton/cnc/internal/types"
)

var (
	commentRe    = regexp.MustCompile(`\s*;.*$`)
	bracketExprRe = regexp.MustCompile(`\[([^\[\]]+)\]`)
)

// Sentinel is the pure result of translating one line.
type Sentinel int

const (
	// SentinelNone means the line, once translated, should be emitted
	// as-is (Emitted holds the text; it may be empty).
	SentinelNone Sentinel = iota
	// SentinelWait is the `%wait` line: emit a dwell and, in the
	// Sender, additionally raise a hold released once acks drain.
	SentinelWait
	// SentinelHold marks a program-pause word (M0/M1/M6). Emitted
	// holds the (possibly parenthesized) line still due on the wire.
	SentinelHold
)

// Result is what Translate returns for one input line.
type Result struct {
	Emitted  string // text to write to the wire; empty means nothing to send
	Sentinel Sentinel
	Reason   types.HoldReason // populated when Sentinel == SentinelHold
	Context  types.ExpressionContext
}

// waitDwell is the fixed dwell command %wait expands to; G4 P0.5 is a
// 500ms pause, long enough for the planner to catch up without
// stalling a running program noticeably.
const waitDwell = "G4 P0.5"

// pauseWords are the M-codes that raise a program pause rather than
// merely being streamed through.
var pauseWords = map[string]bool{"M0": true, "M1": true, "M6": true}

// Translate implements the Feeder/Sender dataFilter: strip `; ...`
// comments, evaluate a leading `%...` as an assignment into ctx (never
// emitted), substitute `[expr]` occurrences against ctx, and detect
// M0/M1/M6 and %wait sentinels. It never mutates ctx; the returned
// Result.Context is what a caller should use for subsequent lines.
func Translate(line string, ctx types.ExpressionContext) (Result, error) {
	if ctx == nil {
		ctx = types.ExpressionContext{}
	}

	trimmed := strings.TrimSpace(line)
	trimmed = commentRe.ReplaceAllString(trimmed, "")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" {
		return Result{Context: ctx}, nil
	}

	if trimmed == "%wait" {
		return Result{Emitted: waitDwell, Sentinel: SentinelWait, Context: ctx}, nil
	}

	if strings.HasPrefix(trimmed, "%") {
		next, err := evalAssignment(trimmed[1:], ctx)
		if err != nil {
			return Result{}, fmt.Errorf("translate %q: %w", line, err)
		}
		return Result{Context: next}, nil
	}

	substituted, err := substituteBrackets(trimmed, ctx)
	if err != nil {
		return Result{}, fmt.Errorf("translate %q: %w", line, err)
	}

	if word := pauseWord(substituted); word != "" {
		emitted := substituted
		if word == "M6" {
			emitted = "(" + substituted + ")"
		}
		return Result{
			Emitted:  emitted,
			Sentinel: SentinelHold,
			Reason:   types.HoldReason{Data: word},
			Context:  ctx,
		}, nil
	}

	return Result{Emitted: substituted, Context: ctx}, nil
}

// evalAssignment runs `name = expr` (or a bare boolean/side-effecting
// expression) against ctx and returns the extended context. It never
// emits a line.
func evalAssignment(assignment string, ctx types.ExpressionContext) (types.ExpressionContext, error) {
	parts := strings.SplitN(assignment, "=", 2)
	if len(parts) != 2 {
		// Bare expression with no assignment target: evaluate for any
		// side effects the expr environment records, discard result.
		if _, err := runExpr(strings.TrimSpace(assignment), ctx); err != nil {
			return ctx, err
		}
		return ctx, nil
	}

	name := strings.TrimSpace(parts[0])
	valueExpr := strings.TrimSpace(parts[1])
	if name == "" {
		return ctx, fmt.Errorf("empty assignment target in %q", assignment)
	}

	value, err := runExpr(valueExpr, ctx)
	if err != nil {
		return ctx, err
	}

	// expr yields int for integer literals; numbers are stored as
	// float64 so every numeric context value has one type.
	if n, ok := value.(int); ok {
		value = float64(n)
	}
	next := ctx.Clone()
	next[name] = value
	return next, nil
}

// substituteBrackets replaces every `[expr]` in line with the string
// form of evaluating expr against ctx.
func substituteBrackets(line string, ctx types.ExpressionContext) (string, error) {
	var evalErr error
	out := bracketExprRe.ReplaceAllStringFunc(line, func(match string) string {
		if evalErr != nil {
			return match
		}
		inner := match[1 : len(match)-1]
		v, err := runExpr(inner, ctx)
		if err != nil {
			evalErr = err
			return match
		}
		return formatValue(v)
	})
	if evalErr != nil {
		return "", evalErr
	}
	return out, nil
}

func runExpr(source string, ctx types.ExpressionContext) (interface{}, error) {
	env := map[string]interface{}(ctx)
	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", source, err)
	}
	return result, nil
}

func formatValue(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func pauseWord(line string) string {
	fields := strings.Fields(strings.ToUpper(line))
	for _, f := range fields {
		if pauseWords[f] {
			return f
		}
	}
	return ""
}
