package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Native operation names. The set is closed; dispatch goes through the
// operation table built in newNativeExecutor.
const (
	opExecuteService        = "execute_service"
	opExecuteServiceSingle  = "execute_service_single"
	opExecuteComplexService = "execute_complex_service"
	opAddAutomation         = "add_automation"
	opGetHistory            = "get_history"
	opGetStatistics         = "get_statistics"
	opGetEnergy             = "get_energy"
	opGetUserFromUserID     = "get_user_from_user_id"
	opGetDeviceStatus       = "get_device_status"
	opGetEntityAttributes   = "get_entity_attributes"
	opMemoryLog             = "barnabee_memory_log"
)

// defaultQueryWindow is the time range applied when history/statistics
// queries omit their bounds.
const defaultQueryWindow = 24 * time.Hour

// memoryFailureReply is the degraded result when the memory sink cannot be
// reached. The memory-log contract is "never block the conversation".
const memoryFailureReply = "I had trouble saving that information"

// nativeOp is one entry in the closed native operation table.
type nativeOp func(ctx context.Context, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error)

// nativeExecutor dispatches over the closed set of built-in operations.
type nativeExecutor struct {
	caps Capabilities
	ops  map[string]nativeOp
}

func newNativeExecutor(caps Capabilities) *nativeExecutor {
	n := &nativeExecutor{caps: caps}
	n.ops = map[string]nativeOp{
		opExecuteService:        n.executeService,
		opExecuteServiceSingle:  n.executeServiceSingle,
		opExecuteComplexService: n.executeComplexService,
		opAddAutomation:         n.addAutomation,
		opGetHistory:            n.getHistory,
		opGetStatistics:         n.getStatistics,
		opGetEnergy:             n.getEnergy,
		opGetUserFromUserID:     n.getUser,
		opGetDeviceStatus:       n.getDeviceStatus,
		opGetEntityAttributes:   n.getEntityAttributes,
		opMemoryLog:             n.memoryLog,
	}
	return n
}

// Validate requires the operation name. The name is resolved against the
// operation table at execute time, so a definition naming an unknown
// operation loads but fails with ErrOperationNotFound when invoked (the
// table is the single source of truth for the closed set).
func (n *nativeExecutor) Validate(raw map[string]any) (Config, error) {
	name, ok := raw["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: native function requires a name", ErrInvalidFunction)
	}
	return Config{"type": KindNative, "name": name}, nil
}

func (n *nativeExecutor) Execute(ctx context.Context, cfg Config, args Arguments, caller CallerContext, exposed []ExposedEntity) (any, error) {
	name, _ := cfg["name"].(string)
	op, ok := n.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, name)
	}
	return op(ctx, args, caller, exposed)
}

// executeService runs a list of service calls with per-item isolation: a
// failing item becomes {"error": message} in its slot and the remaining
// items still execute. Validation failures are isolated the same way as
// call failures — one bad target must not abort its siblings.
func (n *nativeExecutor) executeService(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	items := asList(args["list"])
	if items == nil {
		return nil, fmt.Errorf("%w: execute_service requires a list", ErrParseArguments)
	}

	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		call := asMap(item)
		if call == nil {
			results = append(results, map[string]any{"error": "service call must be an object"})
			continue
		}
		if _, err := n.callService(ctx, call, exposed); err != nil {
			results = append(results, map[string]any{"error": err.Error()})
			continue
		}
		results = append(results, map[string]any{"success": true})
	}
	return results, nil
}

// executeServiceSingle issues one service call with the arguments as the
// call itself. Validation and exposure failures raise; a backend failure
// degrades to an error report, matching the batch operations' item shape.
func (n *nativeExecutor) executeServiceSingle(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	_, err := n.callService(ctx, map[string]any(args), exposed)
	if err != nil {
		if errors.Is(err, ErrParseArguments) || errors.Is(err, ErrCallService) ||
			errors.Is(err, ErrServiceNotFound) || errors.Is(err, ErrEntityNotExposed) ||
			errors.Is(err, ErrEntityNotFound) {
			return nil, err
		}
		return map[string]any{"error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

// executeComplexService runs a batch of service calls and collects a full
// per-item report. The batch continues under partial failure; the overall
// call never raises for an individual item.
func (n *nativeExecutor) executeComplexService(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	items := asList(args["services"])
	if items == nil {
		return nil, fmt.Errorf("%w: execute_complex_service requires a services list", ErrParseArguments)
	}

	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		call := asMap(item)
		label := stringValue(call, "domain", "unknown") + "." + stringValue(call, "service", "unknown")

		response, err := n.callService(ctx, call, exposed)
		if err != nil {
			results = append(results, map[string]any{
				"service": label,
				"success": false,
				"error":   err.Error(),
			})
			continue
		}

		entry := map[string]any{"service": label, "success": true}
		if response != nil {
			entry["result"] = response
		}
		results = append(results, entry)
	}
	return results, nil
}

// callService validates and issues one service call.
//
// It normalizes entity_id (comma-joined string or list), requires at least
// one of entity/area/device target, requires the service to exist, and runs
// the exposure guard before the side-effecting call is issued.
func (n *nativeExecutor) callService(ctx context.Context, item map[string]any, exposed []ExposedEntity) (map[string]any, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: service call must be an object", ErrParseArguments)
	}
	domain, _ := item["domain"].(string)
	service, _ := item["service"].(string)
	if domain == "" || service == "" {
		return nil, fmt.Errorf("%w: domain and service are required", ErrParseArguments)
	}

	data := asMap(item["service_data"])
	if data == nil {
		data = asMap(item["data"])
	}
	data = copyMap(data)

	entityIDs := normalizeEntityIDs(data["entity_id"])
	if entityIDs == nil {
		entityIDs = normalizeEntityIDs(item["entity_id"])
	}
	if len(entityIDs) > 0 {
		data["entity_id"] = entityIDs
	}

	_, hasArea := data["area_id"]
	_, hasDevice := data["device_id"]
	if len(entityIDs) == 0 && !hasArea && !hasDevice {
		return nil, fmt.Errorf("%w: %s.%s", ErrCallService, domain, service)
	}

	if n.caps.Services == nil || !n.caps.Services.HasService(domain, service) {
		return nil, fmt.Errorf("%w: %s.%s", ErrServiceNotFound, domain, service)
	}

	if err := assertExposed(ctx, n.caps.States, entityIDs, exposed); err != nil {
		return nil, err
	}

	return n.caps.Services.Call(ctx, ServiceCall{Domain: domain, Service: service, Data: data})
}

// addAutomation parses a YAML automation definition, assigns a
// timestamp-derived id when absent, and hands it to the automation store,
// which owns validation, persistence, reload and the registered event.
func (n *nativeExecutor) addAutomation(ctx context.Context, args Arguments, _ CallerContext, _ []ExposedEntity) (any, error) {
	raw, _ := args["automation_config"].(string)
	if raw == "" {
		return nil, fmt.Errorf("%w: automation_config is required", ErrParseArguments)
	}
	if n.caps.Automations == nil {
		return nil, errors.New("engine: automation store not configured")
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: automation config: %w", ErrParseArguments, err)
	}

	cfg := map[string]any{
		"id": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	switch v := parsed.(type) {
	case []any:
		if len(v) > 0 {
			for key, val := range asMap(v[0]) {
				cfg[key] = val
			}
		}
	case map[string]any:
		for key, val := range v {
			cfg[key] = val
		}
	default:
		return nil, fmt.Errorf("%w: automation config must be a mapping", ErrParseArguments)
	}

	id, err := n.caps.Automations.Add(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if n.caps.Logger != nil {
		n.caps.Logger.Info("automation registered", "automation_id", id)
	}
	return "Success", nil
}

// getHistory serves a time-ranged state history read. Missing bounds
// default to "now minus one day" through "start plus one day"; every
// requested entity must pass the exposure guard.
func (n *nativeExecutor) getHistory(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	if n.caps.History == nil {
		return nil, errors.New("engine: history provider not configured")
	}

	entityIDs := normalizeEntityIDs(args["entity_ids"])

	now := time.Now().UTC()
	start, err := timeBound(args["start_time"], now.Add(-defaultQueryWindow), "start_time")
	if err != nil {
		return nil, err
	}
	end, err := timeBound(args["end_time"], start.Add(defaultQueryWindow), "end_time")
	if err != nil {
		return nil, err
	}

	if err := assertExposed(ctx, n.caps.States, entityIDs, exposed); err != nil {
		return nil, err
	}

	opts := HistoryOptions{
		IncludeStartTimeState:  boolValue(args, "include_start_time_state", true),
		SignificantChangesOnly: boolValue(args, "significant_changes_only", true),
		MinimalResponse:        boolValue(args, "minimal_response", true),
		NoAttributes:           boolValue(args, "no_attributes", true),
	}
	return n.caps.History.History(ctx, entityIDs, start, end, opts)
}

// getStatistics serves an aggregate statistics read over a time range, with
// the same defaulting and exposure rules as getHistory.
func (n *nativeExecutor) getStatistics(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	if n.caps.Statistics == nil {
		return nil, errors.New("engine: statistics provider not configured")
	}

	statisticIDs := normalizeEntityIDs(args["statistic_ids"])

	now := time.Now().UTC()
	start, err := timeBound(args["start_time"], now.Add(-defaultQueryWindow), "start_time")
	if err != nil {
		return nil, err
	}
	end, err := timeBound(args["end_time"], start.Add(defaultQueryWindow), "end_time")
	if err != nil {
		return nil, err
	}

	if err := assertExposed(ctx, n.caps.States, statisticIDs, exposed); err != nil {
		return nil, err
	}

	types := stringList(args["types"])
	if len(types) == 0 {
		types = []string{"change"}
	}

	units := make(map[string]string)
	for k, v := range asMap(args["units"]) {
		if s, ok := v.(string); ok {
			units[k] = s
		}
	}

	return n.caps.Statistics.Statistics(ctx, StatisticsRequest{
		StatisticIDs: statisticIDs,
		Start:        start,
		End:          end,
		Period:       stringValue(args, "period", "day"),
		Units:        units,
		Types:        types,
	})
}

// getEnergy returns the aggregate energy-manager state. No arguments.
func (n *nativeExecutor) getEnergy(ctx context.Context, _ Arguments, _ CallerContext, _ []ExposedEntity) (any, error) {
	if n.caps.Energy == nil {
		return nil, errors.New("engine: energy provider not configured")
	}
	return n.caps.Energy.EnergySummary(ctx)
}

// getUser resolves a display name for the calling user. Absent or unknown
// users resolve to the sentinel "Unknown" rather than failing.
func (n *nativeExecutor) getUser(ctx context.Context, _ Arguments, caller CallerContext, _ []ExposedEntity) (any, error) {
	name := "Unknown"
	if n.caps.Users != nil && caller.UserID != "" {
		if resolved, err := n.caps.Users.DisplayName(ctx, caller.UserID); err == nil && resolved != "" {
			name = resolved
		}
	}
	return map[string]any{"name": name}, nil
}

// getDeviceStatus routes a free-text device query through the status parser.
func (n *nativeExecutor) getDeviceStatus(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	query, _ := args["device_query"].(string)
	return n.statusQuery(ctx, query, exposed), nil
}

// getEntityAttributes returns state, the full attribute map and change
// timestamps for one exposure-guarded entity.
func (n *nativeExecutor) getEntityAttributes(ctx context.Context, args Arguments, _ CallerContext, exposed []ExposedEntity) (any, error) {
	entityID, _ := args["entity_id"].(string)
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", ErrParseArguments)
	}

	if err := assertExposed(ctx, n.caps.States, []string{entityID}, exposed); err != nil {
		return nil, err
	}

	state, err := n.caps.States.Lookup(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}

	friendly := entityID
	if v, ok := state.Attributes["friendly_name"].(string); ok && v != "" {
		friendly = v
	}

	return map[string]any{
		"entity_id":     entityID,
		"state":         state.State,
		"attributes":    state.Attributes,
		"last_changed":  state.LastChanged.UTC().Format(time.RFC3339),
		"last_updated":  state.LastUpdated.UTC().Format(time.RFC3339),
		"friendly_name": friendly,
	}, nil
}

// memoryLog forwards information to the external memory sink. Network
// failure degrades to an apologetic result — this operation never blocks
// the conversation.
func (n *nativeExecutor) memoryLog(ctx context.Context, args Arguments, caller CallerContext, _ []ExposedEntity) (any, error) {
	information, _ := args["information"].(string)
	category := stringValue(args, "category", "general")

	if n.caps.Memory == nil {
		return memoryFailureReply, nil
	}

	entry := MemoryEntry{
		Information:    information,
		Category:       category,
		UserID:         caller.UserID,
		ConversationID: caller.ConversationID,
		Timestamp:      time.Now().UTC(),
	}
	if err := n.caps.Memory.Log(ctx, entry); err != nil {
		if n.caps.Logger != nil {
			n.caps.Logger.Warn("memory log failed", "error", err)
		}
		return memoryFailureReply, nil
	}
	return "I've remembered: " + information, nil
}

// timeBound parses an optional time argument, applying the fallback when
// absent. Malformed strings fail with a domain error, never a raw parse
// exception.
func timeBound(v any, fallback time.Time, field string) (time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s not valid", ErrParseArguments, field)
}
