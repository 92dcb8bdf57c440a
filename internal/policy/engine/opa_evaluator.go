package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/sirupsen/logrus"
)

const publicQuery = "data.meetmate.gateway.public"

// Default Rego policy for the HTTP gateway. Auth endpoints are public except
// the ones that act on the caller's own sessions.
const defaultRegoPolicy = `package meetmate.gateway

default public = false

protected_auth := {"/api/auth/logout-all", "/api/auth/sessions"}

public if {
	startswith(input.path, "/api/auth/")
	not protected_auth[input.path]
}

public if {
	input.path in {"/actuator/health", "/actuator/info", "/metrics"}
}

public if {
	input.method == "OPTIONS"
}
`

// OPAEvaluator evaluates the gateway access policy using OPA Rego. The query
// is prepared once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
	log   logrus.FieldLogger
}

// NewOPAEvaluator compiles the default policy together with any extra Rego
// modules. Extra modules may add "public" rules to package meetmate.gateway.
func NewOPAEvaluator(ctx context.Context, log logrus.FieldLogger, extra ...string) (*OPAEvaluator, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	for i, m := range extra {
		modules[fmt.Sprintf("policy_%d.rego", i+1)] = m
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	q, err := rego.New(
		rego.Query(publicQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy query: %w", err)
	}
	return &OPAEvaluator{query: q, log: log}, nil
}

// IsPublic evaluates the policy for one request.
func (e *OPAEvaluator) IsPublic(ctx context.Context, method, path string) (bool, error) {
	input := map[string]interface{}{
		"method": strings.ToUpper(method),
		"path":   path,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.log.WithError(err).WithField("path", path).Warn("policy: evaluation failed")
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, _ := rs[0].Expressions[0].Value.(bool)
	return v, nil
}

// HealthCheck verifies that the prepared policy still evaluates. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{"method": "GET", "path": "/actuator/health"}))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}
