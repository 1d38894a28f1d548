// Package auth evaluates rego policies against incoming api requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("context-bridge/api/auth")

var ErrAccessDenied = errors.New("access denied")

// PolicyQuery is the rule that the loaded policy module must define. An
// allowed request yields an object, anything else is treated as a denial.
const PolicyQuery string = "data.contextbridge.authz.allow"

type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request, slices []string) error
}

type policyAuthorizer struct {
	query rego.PreparedEvalQuery
}

func NewAuthorizer(ctx context.Context, policies io.Reader) (Authorizer, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy module: %w", err)
	}

	query, err := rego.New(
		rego.Query("decision = "+PolicyQuery),
		rego.Module("authz.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &policyAuthorizer{query: query}, nil
}

// Authorize hands the request method, path segments, bearer token and the
// requested state slices to the policy as input
func (a *policyAuthorizer) Authorize(ctx context.Context, r *http.Request, slices []string) error {
	var err error

	ctx, span := tracer.Start(ctx, "authorize")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	input := map[string]any{
		"method": r.Method,
		"path":   strings.Split(strings.Trim(r.URL.Path, "/"), "/"),
		"token":  bearerToken(r),
		"slices": slices,
	}

	results, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("policy evaluation failed: %w", err)
		return err
	}

	if len(results) == 0 {
		err = fmt.Errorf("policy produced no decision: %w", ErrAccessDenied)
		return err
	}

	switch decision := results[0].Bindings["decision"].(type) {
	case map[string]any:
		logging.GetFromContext(ctx).Debug("request authorized", "method", r.Method, "path", r.URL.Path)
		return nil
	case bool:
		if !decision {
			err = fmt.Errorf("request denied by policy: %w", ErrAccessDenied)
			return err
		}
	}

	err = fmt.Errorf("policy decision has an unexpected type")
	return err
}

func bearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")

	const prefix string = "bearer "
	if len(token) > len(prefix) && strings.EqualFold(token[:len(prefix)], prefix) {
		return token[len(prefix):]
	}

	return token
}
