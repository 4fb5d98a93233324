package blocks

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/petrijr/botflow/pkg/api"
)

// Handles a condition node branches on.
const (
	HandleYes = "yes"
	HandleNo  = "no"
)

// conditionBlock evaluates a boolean expression against the triggering update
// and the session, then follows the "yes" or "no" edge.
//
// Variables available to the expression:
//
//	text, callback, username   string
//	chat_id, user_id           int
//	vars                       map of session variables
//	history                    visited node ids, oldest first
type conditionBlock struct {
	source  string
	program *vm.Program
}

func newConditionBlock(n api.Node) (api.Block, error) {
	if n.Data.Condition == "" {
		return &conditionBlock{}, nil
	}
	program, err := expr.Compile(n.Data.Condition,
		expr.Env(conditionEnv(&api.Exec{Session: api.NewSession("", 0, 0)})),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "invalid condition", Err: err}
	}
	return &conditionBlock{source: n.Data.Condition, program: program}, nil
}

func conditionEnv(x *api.Exec) map[string]any {
	env := map[string]any{
		"text":     "",
		"callback": "",
		"username": "",
		"chat_id":  x.ChatID,
		"user_id":  int64(0),
		"vars":     map[string]string{},
		"history":  []string{},
	}
	if x.Update != nil {
		env["text"] = x.Update.Text
		env["callback"] = x.Update.CallbackData
		env["username"] = x.Update.Username
		env["user_id"] = x.Update.UserID
	}
	if x.Session != nil {
		env["vars"] = x.Session.Vars
		env["history"] = x.Session.History()
	}
	return env
}

// Execute follows the default edge when no condition is configured.
func (b *conditionBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if b.program == nil {
		return api.FollowEdge(), nil
	}
	out, err := expr.Run(b.program, conditionEnv(x))
	if err != nil {
		return api.Wait(), fmt.Errorf("evaluate %q: %w", b.source, err)
	}
	if ok, _ := out.(bool); ok {
		return api.FollowHandle(HandleYes), nil
	}
	return api.FollowHandle(HandleNo), nil
}
