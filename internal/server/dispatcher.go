package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kcalhq/kcal/internal/auth"
	"github.com/kcalhq/kcal/internal/model"
	"github.com/kcalhq/kcal/internal/params"
	"github.com/kcalhq/kcal/internal/resolve"
	"github.com/kcalhq/kcal/internal/service/meals"
	"github.com/kcalhq/kcal/internal/storage"
)

// messageVersion is the fixed envelope version the agent runtime expects.
const messageVersion = "1.0"

// MealService is the mutation and listing surface the dispatcher routes to.
// *meals.Service satisfies it.
type MealService interface {
	Add(ctx context.Context, principal string, rec model.MealRecord) (string, error)
	Modify(ctx context.Context, principal string, id int64, f model.MealFields) (string, error)
	Remove(ctx context.Context, principal string, id int64) (string, error)
	List(ctx context.Context, principal string, f model.ListFilter) ([]model.MealRecord, error)
}

// MatchResolver resolves fuzzy meal references. *resolve.Resolver satisfies it.
type MatchResolver interface {
	Resolve(ctx context.Context, principal string, q resolve.Query) (model.Resolution, error)
}

// Dispatcher routes invocation events to the meal operations. It always
// returns a well-formed envelope; failures are carried in the embedded
// status code, never as a malformed response.
type Dispatcher struct {
	verifier *auth.Verifier
	svc      MealService
	resolver MatchResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(verifier *auth.Verifier, svc MealService, resolver MatchResolver, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		verifier: verifier,
		svc:      svc,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// operationAliases maps the operation names the runtime has used over time
// to the canonical five operations. Lookups are lowercased with any leading
// slash stripped.
var operationAliases = map[string]string{
	"add_meal":     "add",
	"addmeal":      "add",
	"add":          "add",
	"delete_meal":  "delete",
	"deletemeal":   "delete",
	"delete":       "delete",
	"modify_meal":  "modify",
	"update_meal":  "modify",
	"modifymeal":   "modify",
	"modify":       "modify",
	"get_meals":    "list",
	"getmeals":     "list",
	"list_meals":   "list",
	"list":         "list",
	"find_meal":    "resolve",
	"findmeal":     "resolve",
	"resolve_meal": "resolve",
	"resolve":      "resolve",
}

// Dispatch verifies the caller, normalizes parameters, and executes the
// requested operation. The returned envelope always echoes the event's
// identity and session attributes.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.InvocationEvent) (resp model.ToolResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("dispatch panic", "panic", rec, "function", ev.Function)
			resp = buildResponse(ev, 500, "internal error")
		}
	}()

	principal, err := d.verifier.Verify(ev.SessionAttributes["access_token"])
	if err != nil {
		d.logger.Warn("invocation rejected", "function", ev.Function)
		return buildResponse(ev, 401, auth.GenericMessage)
	}

	op, ok := resolveOperation(ev)
	if !ok {
		return buildResponse(ev, 400, "Function not found")
	}

	p := params.Normalize(ev)

	body, err := d.execute(ctx, principal, op, p)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			d.logger.Error("operation failed", "operation", op, "error", err)
		} else {
			d.logger.Debug("operation rejected", "operation", op, "error", err)
		}
		return buildResponse(ev, status, messageFor(err))
	}
	return buildResponse(ev, 200, body)
}

func (d *Dispatcher) execute(ctx context.Context, principal, op string, p params.Params) (string, error) {
	switch op {
	case "add":
		return d.svc.Add(ctx, principal, recordFromParams(p))
	case "modify":
		if id, ok := mealID(p); ok {
			return d.svc.Modify(ctx, principal, id, meals.FieldsFromParams(p))
		}
		return d.resolveAndAct(ctx, principal, "modify", p)
	case "delete":
		if id, ok := mealID(p); ok {
			return d.svc.Remove(ctx, principal, id)
		}
		return d.resolveAndAct(ctx, principal, "delete", p)
	case "list":
		recs, err := d.svc.List(ctx, principal, model.DayFilter(d.now()))
		if err != nil {
			return "", err
		}
		return meals.FormatDaily(recs), nil
	case "resolve":
		return d.resolveAndAct(ctx, principal, "", p)
	default:
		return "", &meals.ValidationError{Msg: "Function not found"}
	}
}

// resolveAndAct matches the name parameter against the principal's history.
// action "" means find-only; "delete" and "modify" act on a confident match.
func (d *Dispatcher) resolveAndAct(ctx context.Context, principal, action string, p params.Params) (string, error) {
	q := resolve.Query{
		Name:   matchName(p),
		Action: action,
	}
	if v, ok := p.Float("threshold"); ok {
		q.Threshold = v
	}
	// On a modify, calories is the replacement value, not a hint about the
	// record being matched, so it must not steer the boost.
	if action == "modify" {
		q.UpdateFields = updateFieldsForMatch(p)
	} else if v, ok := p.Float("calories"); ok {
		q.TargetEnergy = &v
	}

	res, err := d.resolver.Resolve(ctx, principal, q)
	if err != nil {
		return "", err
	}
	return formatResolution(res), nil
}

// formatResolution renders a resolution for conversational display. Auto-acted
// resolutions surface the mutation confirmation alone.
func formatResolution(res model.Resolution) string {
	if res.AutoActed || len(res.Candidates) == 0 {
		return res.Message
	}

	var b strings.Builder
	b.WriteString(res.Message)
	for _, c := range res.Candidates {
		fmt.Fprintf(&b, "\nID: %d - %s (score %.2f)", c.ID, c.Name, c.Score)
	}
	return b.String()
}

// resolveOperation maps the event's function or api path to a canonical
// operation name.
func resolveOperation(ev model.InvocationEvent) (string, bool) {
	name := ev.Function
	if name == "" {
		name = ev.APIPath
	}
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	op, ok := operationAliases[name]
	return op, ok
}

// recordFromParams assembles a new meal record from normalized parameters.
func recordFromParams(p params.Params) model.MealRecord {
	rec := model.MealRecord{Name: p.String("name")}
	if v, ok := p.Float("calories"); ok {
		rec.Calories = &v
	}
	if v, ok := p.Float("protein"); ok {
		rec.Protein = &v
	}
	if v, ok := p.Float("carbs"); ok {
		rec.Carbs = &v
	}
	if v, ok := p.Float("fat"); ok {
		rec.Fat = &v
	}
	return rec
}

// mealID extracts an explicit record id, under either key the runtime sends.
func mealID(p params.Params) (int64, bool) {
	if id, ok := p.Int64("meal_id"); ok && id > 0 {
		return id, true
	}
	if id, ok := p.Int64("id"); ok && id > 0 {
		return id, true
	}
	return 0, false
}

// matchName is the fuzzy-match key: "name", or "meal_name" as fallback.
func matchName(p params.Params) string {
	if name := p.String("name"); name != "" {
		return name
	}
	return p.String("meal_name")
}

// updateFieldsForMatch builds the changes a resolved modify applies. The name
// parameter is the match key, so renames come from new_name instead.
func updateFieldsForMatch(p params.Params) model.MealFields {
	f := meals.FieldsFromParams(p)
	f.Name = nil
	if newName := p.String("new_name"); newName != "" {
		f.Name = &newName
	}
	return f
}

// statusFor maps an operation error to the embedded status code.
func statusFor(err error) int {
	var verr *meals.ValidationError
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return 401
	case errors.As(err, &verr), errors.Is(err, storage.ErrNotFound):
		return 400
	default:
		return 500
	}
}

// messageFor renders an operation error for the agent. Validation messages
// and store failures pass through; anything unanticipated gets a generic
// message, with the detail left to the boundary log.
func messageFor(err error) string {
	var verr *meals.ValidationError
	var serr *storage.Error
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return auth.GenericMessage
	case errors.As(err, &verr):
		return verr.Msg
	case errors.Is(err, storage.ErrNotFound):
		return "Meal not found or not permitted"
	case errors.As(err, &serr):
		return fmt.Sprintf("Error: %v", serr)
	default:
		return "internal error"
	}
}

// buildResponse wraps a body in the fixed envelope, echoing the event's
// identity and session attributes.
func buildResponse(ev model.InvocationEvent, status int, body string) model.ToolResponse {
	rb := model.ToolResponseBody{
		ActionGroup:    ev.ActionGroup,
		HTTPStatusCode: status,
	}
	content := map[string]model.ResponseContent{}

	if ev.Function != "" {
		rb.Function = ev.Function
		content["TEXT"] = model.ResponseContent{Body: body}
		rb.FunctionResponse = &model.FunctionResponse{ResponseBody: content}
	} else {
		rb.APIPath = ev.APIPath
		rb.HTTPMethod = ev.HTTPMethod
		content["application/json"] = model.ResponseContent{Body: body}
		rb.ResponseBody = content
	}

	return model.ToolResponse{
		MessageVersion:          messageVersion,
		Response:                rb,
		SessionAttributes:       ev.SessionAttributes,
		PromptSessionAttributes: ev.PromptSessionAttributes,
	}
}
