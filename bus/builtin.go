package bus

import (
	buserrors "github.com/swarmlab/agentbus/errors"
	"github.com/swarmlab/agentbus/message"
)

// builtinHandler answers an admin method addressed to the bus itself.
// Built-ins run inline on the routing goroutine: they never block on an
// agent and are not subject to breakers or the dispatch timeout.
type builtinHandler func(c *Controller, msg *message.Message) (*message.Message, error)

// builtinHandlers maps admin method names to their handlers. A message
// with one of these methods and no recipient is answered by the bus;
// with a recipient set, the same method name dispatches to the agent.
func builtinHandlers() map[string]builtinHandler {
	return map[string]builtinHandler{
		"ping":                  handlePing,
		"get_agents":            handleGetAgents,
		"get_metrics":           handleGetMetrics,
		"get_context":           handleGetContext,
		"set_context":           handleSetContext,
		"broadcast":             handleBroadcast,
		"health_check":          handleHealthCheck,
		"start_pipeline":        handleStartPipeline,
		"pipeline_status":       handlePipelineStatus,
		"reset_circuit_breaker": handleResetBreaker,
		"get_event_history":     handleGetEventHistory,
		"emergency_shutdown":    handleEmergencyShutdown,
	}
}

func handlePing(c *Controller, msg *message.Message) (*message.Message, error) {
	return message.NewResponse(msg, map[string]interface{}{
		"status": "ok",
		"uptime": c.clock().Sub(c.startedAt).String(),
	}), nil
}

func handleGetAgents(c *Controller, msg *message.Message) (*message.Message, error) {
	regs := c.registry.List()
	agents := make([]map[string]interface{}, 0, len(regs))
	for _, r := range regs {
		agents = append(agents, map[string]interface{}{
			"agent_id":      r.AgentID,
			"role":          r.Role,
			"active":        r.Active,
			"registered_at": r.RegisteredAt,
		})
	}
	return message.NewResponse(msg, map[string]interface{}{
		"agents": agents,
		"count":  len(agents),
	}), nil
}

func handleGetMetrics(c *Controller, msg *message.Message) (*message.Message, error) {
	m := c.metrics.snapshot()
	return message.NewResponse(msg, map[string]interface{}{
		"messages_routed":            m.MessagesRouted,
		"dispatched":                 m.Dispatched,
		"dispatch_failures":          m.DispatchFailures,
		"timeouts":                   m.Timeouts,
		"circuit_breaker_trips":      m.BreakerTrips,
		"circuit_breaker_rejections": m.BreakerRejections,
		"broadcasts":                 m.Broadcasts,
		"builtin_calls":              m.BuiltinCalls,
		"dropped_on_shutdown":        m.DroppedOnShutdown,
		"unroutable_messages":        m.UnroutableMessages,
		"agents":                     c.registry.Len(),
		"queued":                     c.lanes.size(),
	}), nil
}

func handleGetContext(c *Controller, msg *message.Message) (*message.Message, error) {
	// No key param at all: return the full key listing. A key that is
	// present but malformed is an input error, not a listing request.
	if _, present := msg.Params["key"]; !present {
		return message.NewResponse(msg, map[string]interface{}{
			"keys": c.shared.keys(),
			"size": c.shared.size(),
		}), nil
	}
	key, err := stringParam(msg, "key")
	if err != nil {
		return nil, err
	}
	value, found := c.shared.get(key)
	return message.NewResponse(msg, map[string]interface{}{
		"key":   key,
		"value": value,
		"found": found,
	}), nil
}

func handleSetContext(c *Controller, msg *message.Message) (*message.Message, error) {
	key, err := stringParam(msg, "key")
	if err != nil {
		return nil, err
	}
	value, ok := msg.Params["value"]
	if !ok {
		return nil, buserrors.InvalidInput("set_context requires a value param",
			buserrors.WithMessageID(msg.ID))
	}
	if err := c.shared.set(key, value); err != nil {
		return nil, err
	}
	return message.NewResponse(msg, map[string]interface{}{
		"key":    key,
		"stored": true,
	}), nil
}

func handleBroadcast(c *Controller, msg *message.Message) (*message.Message, error) {
	role, err := stringParam(msg, "role")
	if err != nil {
		return nil, err
	}
	params := mapParam(msg, "params")
	responses := c.Broadcast(role, params)
	collected := make([]interface{}, 0, len(responses))
	for _, r := range responses {
		collected = append(collected, r)
	}
	return message.NewResponse(msg, map[string]interface{}{
		"role":      role,
		"responses": collected,
		"count":     len(collected),
	}), nil
}

func handleHealthCheck(c *Controller, msg *message.Message) (*message.Message, error) {
	reports := c.HealthCheck()
	agents := make(map[string]interface{}, len(reports))
	healthy := 0
	for id, rep := range reports {
		if rep.Status == "healthy" {
			healthy++
		}
		agents[id] = map[string]interface{}{
			"status":            string(rep.Status),
			"last_ping":         rep.LastPing,
			"avg_response_time": rep.AvgResponseTime.String(),
			"error_rate":        rep.ErrorRate,
			"availability":      rep.Availability,
		}
	}
	return message.NewResponse(msg, map[string]interface{}{
		"agents":    agents,
		"healthy":   healthy,
		"unhealthy": len(reports) - healthy,
	}), nil
}

func handleStartPipeline(c *Controller, msg *message.Message) (*message.Message, error) {
	id, _ := stringParam(msg, "pipeline_id")
	cfg := mapParam(msg, "config")
	pipelineID, err := c.StartPipeline(id, cfg)
	if err != nil {
		return nil, err
	}
	return message.NewResponse(msg, map[string]interface{}{
		"pipeline_id": pipelineID,
		"status":      "running",
	}), nil
}

func handlePipelineStatus(c *Controller, msg *message.Message) (*message.Message, error) {
	id, err := stringParam(msg, "pipeline_id")
	if err != nil {
		// No ID: return everything.
		return message.NewResponse(msg, map[string]interface{}{
			"pipelines": c.AllPipelines(),
		}), nil
	}
	p, err := c.PipelineStatus(id)
	if err != nil {
		return nil, buserrors.FromCode(buserrors.ErrCodeNotFound,
			buserrors.WithMetadata("pipeline_id", id), buserrors.WithCause(err))
	}
	return message.NewResponse(msg, map[string]interface{}{
		"pipeline": p,
	}), nil
}

func handleResetBreaker(c *Controller, msg *message.Message) (*message.Message, error) {
	agentID, err := stringParam(msg, "agent_id")
	if err != nil {
		return nil, err
	}
	if err := c.ResetBreaker(agentID); err != nil {
		return nil, buserrors.FromCode(buserrors.ErrCodeNotFound,
			buserrors.WithAgentID(agentID), buserrors.WithCause(err))
	}
	return message.NewResponse(msg, map[string]interface{}{
		"agent_id": agentID,
		"state":    "closed",
	}), nil
}

func handleGetEventHistory(c *Controller, msg *message.Message) (*message.Message, error) {
	limit := intParam(msg, "limit", 100)
	typeFilter, _ := stringParam(msg, "type")
	events := c.QueryEvents(limit, typeFilter)
	return message.NewResponse(msg, map[string]interface{}{
		"events": events,
		"count":  len(events),
	}), nil
}

func handleEmergencyShutdown(c *Controller, msg *message.Message) (*message.Message, error) {
	reason, _ := stringParam(msg, "reason")
	if reason == "" {
		reason = "operator request"
	}
	c.EmergencyShutdown(reason)
	return message.NewResponse(msg, map[string]interface{}{
		"halted": true,
		"reason": reason,
	}), nil
}

// stringParam extracts a required string param.
func stringParam(msg *message.Message, key string) (string, error) {
	v, ok := msg.Params[key]
	if !ok {
		return "", buserrors.InvalidInput("missing param: "+key,
			buserrors.WithMessageID(msg.ID))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", buserrors.InvalidInput("param must be a non-empty string: "+key,
			buserrors.WithMessageID(msg.ID))
	}
	return s, nil
}

// intParam extracts an optional integer param. JSON decoding yields
// float64, so both are accepted.
func intParam(msg *message.Message, key string, fallback int) int {
	v, ok := msg.Params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// mapParam extracts an optional map param.
func mapParam(msg *message.Message, key string) map[string]interface{} {
	if v, ok := msg.Params[key]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}
