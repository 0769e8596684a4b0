package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmlab/agentbus/breaker"
	"github.com/swarmlab/agentbus/config"
	buserrors "github.com/swarmlab/agentbus/errors"
	"github.com/swarmlab/agentbus/eventlog"
	"github.com/swarmlab/agentbus/health"
	"github.com/swarmlab/agentbus/logging"
	"github.com/swarmlab/agentbus/message"
	"github.com/swarmlab/agentbus/pipeline"
	"github.com/swarmlab/agentbus/registry"
)

// SenderBus is the sender ID the controller uses for messages it originates.
const SenderBus = "bus"

// senderHealth is the sender ID for synthetic health probes.
const senderHealth = "health-monitor"

// Controller is the public entry point of the coordination bus. It owns
// the agent registry, the per-agent breaker table, the event log, the
// pipeline tracker, the health monitor, and the four priority lanes.
// No agent or external caller mutates these directly.
type Controller struct {
	cfg config.Config
	log *logging.Logger

	registry  *registry.Registry
	events    *eventlog.Log
	pipelines *pipeline.Tracker
	monitor   *health.Monitor

	breakerMu sync.RWMutex
	breakers  map[string]*breaker.Breaker

	lanes   *laneSet
	shared  *contextStore
	metrics metrics

	builtins map[string]builtinHandler

	halted    atomic.Bool
	startedAt time.Time

	// clock feeds the breakers and bounded stores. Test hook; set it
	// before routing any traffic.
	clock func() time.Time
}

// New creates a controller from the given configuration.
// A nil logger gets a default one at the configured level.
func New(cfg config.Config, log *logging.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.New()
		log.SetLevel(logging.Level(cfg.LogLevel))
	}

	c := &Controller{
		cfg:       cfg,
		log:       log.WithComponent("bus"),
		registry:  registry.New(),
		lanes:     newLaneSet(),
		breakers:  make(map[string]*breaker.Breaker),
		shared:    newContextStore(cfg.ContextLimit),
		startedAt: time.Now(),
		clock:     time.Now,
	}
	c.events = eventlog.New(eventlog.Config{
		Capacity: cfg.EventLogCapacity,
		Clock:    func() time.Time { return c.clock() },
	})
	c.pipelines = pipeline.NewTracker(pipeline.Config{
		ArchiveSize: cfg.PipelineArchiveSize,
		Events:      c.events,
		Clock:       func() time.Time { return c.clock() },
	})
	c.monitor = health.NewMonitor(health.Config{
		Window: cfg.HealthWindow,
		Clock:  func() time.Time { return c.clock() },
	})
	c.builtins = builtinHandlers()
	return c, nil
}

// Register adds an agent to the bus, giving it a closed breaker and a
// healthy record. Re-registering an ID replaces the previous registration.
func (c *Controller) Register(agent registry.Agent) error {
	if c.halted.Load() {
		return ErrHalted
	}
	if err := c.registry.Register(agent); err != nil {
		return err
	}

	id := agent.ID()
	c.breakerMu.Lock()
	c.breakers[id] = breaker.New(breaker.Config{
		FailureThreshold: c.cfg.FailureThreshold,
		RecoveryTimeout:  c.cfg.RecoveryTimeout.Std(),
		CloseAfter:       c.cfg.CloseAfter,
		Clock:            func() time.Time { return c.clock() },
	})
	c.breakerMu.Unlock()

	c.monitor.Track(id)
	c.events.Append(eventlog.TypeAgentRegistered, map[string]interface{}{
		"agent_id": id,
		"role":     agent.Role(),
	})
	c.log.AgentRegistered(id, agent.Role())
	return nil
}

// RegisterFunc registers a handler function as an agent.
func (c *Controller) RegisterFunc(agentID, role string, fn registry.HandlerFunc) error {
	return c.Register(registry.NewAgent(agentID, role, fn))
}

// Unregister removes an agent and its breaker and health record.
func (c *Controller) Unregister(agentID string) error {
	if err := c.registry.Deregister(agentID); err != nil {
		return err
	}

	c.breakerMu.Lock()
	delete(c.breakers, agentID)
	c.breakerMu.Unlock()

	c.monitor.Forget(agentID)
	c.events.Append(eventlog.TypeAgentUnregistered, map[string]interface{}{
		"agent_id": agentID,
	})
	c.log.AgentUnregistered(agentID)
	return nil
}

// Route enqueues the message onto the requested lane, then drains exactly
// one message from the highest non-empty lane and processes it end to end.
//
// Route is pull-based: one call services one message, which is not
// necessarily the one just enqueued if a higher-priority message is
// pending. Callers running a background feed loop must keep calling
// Route to service backlog.
//
// Operational failures come back as an Error-kind message, never as a Go
// error. Route errors only for programmer mistakes: a nil message, a
// missing method, or an unknown priority name. A nil, nil return happens
// in exactly two cases: the dequeued message was a broadcast no agent
// responded to, or a fire-and-forget notification whose handler returned
// nothing.
func (c *Controller) Route(msg *message.Message, priority Priority) (*message.Message, error) {
	return c.route(msg, priority, c.cfg.DispatchTimeout.Std())
}

func (c *Controller) route(msg *message.Message, priority Priority, timeout time.Duration) (*message.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	p, err := ParsePriority(string(priority))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPriority, priority)
	}

	c.metrics.messagesRouted.Add(1)
	c.events.Append(eventlog.TypeMessageReceived, map[string]interface{}{
		"message_id": msg.ID,
		"method":     msg.Method,
		"sender":     msg.Sender,
		"recipient":  msg.Recipient,
		"priority":   string(p),
	})

	if err := c.lanes.push(p, msg); err != nil {
		return nil, err
	}
	next, ok := c.lanes.pop()
	if !ok {
		// Cannot happen: we just pushed.
		return nil, buserrors.Internal("lane underflow")
	}
	return c.process(next.msg, timeout), nil
}

// process routes one dequeued message: built-in first, then direct
// dispatch, then role broadcast.
func (c *Controller) process(msg *message.Message, timeout time.Duration) *message.Message {
	// Built-ins answer directly: no breaker, no agent lookup. A set
	// recipient always goes to the agent, so a ping addressed to an
	// agent probes the agent rather than the bus.
	if msg.Recipient == "" {
		if fn, ok := c.builtins[msg.Method]; ok {
			c.metrics.builtinCalls.Add(1)
			resp, err := fn(c, msg)
			if err != nil {
				return message.NewError(msg, err)
			}
			return resp
		}
	}

	if msg.Recipient != "" {
		return c.dispatch(msg, timeout)
	}

	// Broadcast: method name doubles as the role selector.
	targets := c.registry.FindByRole(msg.Method)
	if len(targets) == 0 {
		c.metrics.unroutableMessages.Add(1)
		return message.NewError(msg, buserrors.Unroutable(msg.ID,
			buserrors.WithMetadata("role", msg.Method)))
	}
	responses := c.fanout(msg, targets, timeout)
	if len(responses) == 0 {
		return nil
	}
	return responses[0]
}

// dispatch sends one message to its recipient through the breaker, with a
// bounded timeout. All failures are converted to Error-kind messages and
// accounted against the agent's breaker.
func (c *Controller) dispatch(msg *message.Message, timeout time.Duration) *message.Message {
	agentID := msg.Recipient

	agent, err := c.registry.Get(agentID)
	if err != nil {
		c.metrics.unroutableMessages.Add(1)
		return message.NewError(msg, buserrors.Unroutable(msg.ID,
			buserrors.WithAgentID(agentID)))
	}

	br := c.breakerFor(agentID)
	if err := br.Allow(); err != nil {
		// Isolation guarantee: an open breaker refuses without invoking
		// the agent, so a failing agent cannot burn timeout budget.
		c.metrics.breakerRejections.Add(1)
		oerr := buserrors.CircuitOpen(agentID, buserrors.WithMessageID(msg.ID))
		c.events.Append(eventlog.TypeDispatchFailed, map[string]interface{}{
			"message_id": msg.ID,
			"agent_id":   agentID,
			"code":       string(buserrors.ErrCodeCircuitOpen),
		})
		return message.NewError(msg, oerr)
	}

	if active, _ := c.registry.IsActive(agentID); !active {
		ierr := buserrors.AgentInactive(agentID, buserrors.WithMessageID(msg.ID))
		c.recordFailure(msg, agentID, br, ierr)
		return message.NewError(msg, ierr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := c.clock()
	resultCh := make(chan handleResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- handleResult{err: buserrors.Internal(fmt.Sprintf("handler panic: %v", r))}
			}
		}()
		resp, herr := agent.Handle(ctx, msg)
		resultCh <- handleResult{resp: resp, err: herr}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			ferr := buserrors.HandlerFailed(agentID, res.err, buserrors.WithMessageID(msg.ID))
			c.recordFailure(msg, agentID, br, ferr)
			return message.NewError(msg, ferr)
		}
		c.recordSuccess(msg, agentID, br, c.clock().Sub(start))
		return res.resp
	case <-ctx.Done():
		// The wait is canceled, not the handler. Agents must be
		// abandon-safe or idempotent past this point.
		c.metrics.timeouts.Add(1)
		terr := buserrors.DispatchTimeout(agentID, timeout, buserrors.WithMessageID(msg.ID))
		c.recordFailure(msg, agentID, br, terr)
		return message.NewError(msg, terr)
	}
}

type handleResult struct {
	resp *message.Message
	err  error
}

// fanout dispatches a broadcast to each target sequentially. Failures are
// isolated per agent and never abort the remaining targets; only non-error
// responses are collected.
func (c *Controller) fanout(msg *message.Message, targets []string, timeout time.Duration) []*message.Message {
	c.metrics.broadcasts.Add(1)

	var responses []*message.Message
	for _, id := range targets {
		per := *msg
		per.Recipient = id
		resp := c.dispatch(&per, timeout)
		if resp != nil && resp.Kind != message.KindError {
			responses = append(responses, resp)
		}
	}

	c.events.Append(eventlog.TypeBroadcast, map[string]interface{}{
		"message_id": msg.ID,
		"role":       msg.Method,
		"targets":    len(targets),
		"responses":  len(responses),
	})
	return responses
}

// Broadcast dispatches method to every active agent whose role matches
// method, sequentially, and returns all non-error responses. Zero
// responding agents yields an empty slice, not an error.
func (c *Controller) Broadcast(method string, params map[string]interface{}) []*message.Message {
	msg := message.NewRequest("", method, SenderBus, "", params)
	targets := c.registry.FindByRole(method)
	if len(targets) == 0 {
		return nil
	}
	return c.fanout(msg, targets, c.cfg.DispatchTimeout.Std())
}

// recordSuccess accounts a successful dispatch against the breaker,
// metrics, and event log.
func (c *Controller) recordSuccess(msg *message.Message, agentID string, br *breaker.Breaker, elapsed time.Duration) {
	if closed := br.RecordSuccess(); closed {
		c.events.Append(eventlog.TypeBreakerClosed, map[string]interface{}{
			"agent_id": agentID,
		})
		c.log.BreakerRecovered(agentID)
	}
	c.metrics.dispatched.Add(1)
	c.events.Append(eventlog.TypeMessageDispatched, map[string]interface{}{
		"message_id":  msg.ID,
		"agent_id":    agentID,
		"method":      msg.Method,
		"duration_ms": elapsed.Milliseconds(),
	})
	c.log.Dispatch(agentID, msg.Method, elapsed)
}

// recordFailure accounts a failed dispatch against the breaker, metrics,
// and event log, tripping the breaker when the threshold is reached.
func (c *Controller) recordFailure(msg *message.Message, agentID string, br *breaker.Breaker, cause error) {
	if tripped := br.RecordFailure(); tripped {
		snap := br.Snapshot()
		c.metrics.breakerTrips.Add(1)
		c.events.Append(eventlog.TypeBreakerTripped, map[string]interface{}{
			"agent_id": agentID,
			"failures": snap.FailureCount,
		})
		c.log.BreakerTrip(agentID, snap.FailureCount)
	}
	c.metrics.dispatchFailures.Add(1)
	c.events.Append(eventlog.TypeDispatchFailed, map[string]interface{}{
		"message_id": msg.ID,
		"agent_id":   agentID,
		"code":       string(buserrors.CodeOf(cause)),
		"error":      cause.Error(),
	})
	c.log.DispatchFailed(agentID, msg.Method, cause)
}

// breakerFor returns the agent's breaker, creating one for agents that
// predate the breaker table (defensive; Register always creates it).
func (c *Controller) breakerFor(agentID string) *breaker.Breaker {
	c.breakerMu.RLock()
	br, ok := c.breakers[agentID]
	c.breakerMu.RUnlock()
	if ok {
		return br
	}

	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	if br, ok = c.breakers[agentID]; ok {
		return br
	}
	br = breaker.New(breaker.Config{
		FailureThreshold: c.cfg.FailureThreshold,
		RecoveryTimeout:  c.cfg.RecoveryTimeout.Std(),
		CloseAfter:       c.cfg.CloseAfter,
		Clock:            func() time.Time { return c.clock() },
	})
	c.breakers[agentID] = br
	return br
}

// BreakerState returns the state of an agent's breaker.
func (c *Controller) BreakerState(agentID string) (breaker.Snapshot, error) {
	c.breakerMu.RLock()
	br, ok := c.breakers[agentID]
	c.breakerMu.RUnlock()
	if !ok {
		return breaker.Snapshot{}, registry.ErrNotFound
	}
	return br.Snapshot(), nil
}

// ResetBreaker forces an agent's breaker closed.
func (c *Controller) ResetBreaker(agentID string) error {
	c.breakerMu.RLock()
	br, ok := c.breakers[agentID]
	c.breakerMu.RUnlock()
	if !ok {
		return registry.ErrNotFound
	}

	br.Reset()
	c.events.Append(eventlog.TypeBreakerReset, map[string]interface{}{
		"agent_id": agentID,
	})
	return nil
}

// StartPipeline creates a running pipeline and returns its ID.
func (c *Controller) StartPipeline(id string, cfg map[string]interface{}) (string, error) {
	return c.pipelines.Start(id, cfg)
}

// Pipelines exposes the tracker for stage mutation by orchestration logic.
func (c *Controller) Pipelines() *pipeline.Tracker {
	return c.pipelines
}

// PipelineStatus returns one pipeline by ID.
func (c *Controller) PipelineStatus(id string) (pipeline.Pipeline, error) {
	return c.pipelines.Get(id)
}

// AllPipelines returns every known pipeline, active first.
func (c *Controller) AllPipelines() []pipeline.Pipeline {
	return c.pipelines.All()
}

// QueryEvents returns up to limit recent events, optionally filtered by
// type, newest-last.
func (c *Controller) QueryEvents(limit int, typeFilter string) []eventlog.Event {
	return c.events.Query(limit, typeFilter)
}

// HealthCheck pings every registered agent through the ordinary dispatch
// path, so open breakers and inactive agents show up as unhealthy without
// a separate probe channel. Probes bypass the priority lanes: a sweep
// must never service queued traffic, and a queued message's outcome must
// never be attributed to the agent being probed. Returns the updated
// records.
func (c *Controller) HealthCheck() map[string]health.Report {
	ids := c.registry.IDs()
	unhealthy := 0

	for _, id := range ids {
		ping := message.NewRequest("", "ping", senderHealth, id, nil)
		start := c.clock()
		resp := c.dispatch(ping, c.cfg.PingTimeout.Std())
		rtt := c.clock().Sub(start)

		var probeErr error
		switch {
		case resp == nil:
			probeErr = buserrors.FromCode(buserrors.ErrCodeInternal,
				buserrors.WithAgentID(id), buserrors.WithMetadata("probe", "no response"))
		case resp.Kind == message.KindError:
			probeErr = buserrors.Newf(buserrors.ErrCodeInternal, "probe failed: %v", resp.Params["error"])
		}
		if probeErr != nil {
			unhealthy++
		}
		c.monitor.Observe(id, rtt, probeErr)
	}

	c.events.Append(eventlog.TypeHealthCheck, map[string]interface{}{
		"agents":    len(ids),
		"unhealthy": unhealthy,
	})
	c.log.HealthSweep(len(ids), unhealthy)
	return c.monitor.Reports()
}

// SetAgentActive updates an agent's self-reported availability.
func (c *Controller) SetAgentActive(agentID string, active bool) error {
	return c.registry.SetActive(agentID, active)
}

// Agents returns the registration records of all agents.
func (c *Controller) Agents() []registry.Registration {
	return c.registry.List()
}

// Metrics returns a snapshot of the controller's counters.
func (c *Controller) Metrics() Metrics {
	return c.metrics.snapshot()
}

// Halted reports whether the controller has been shut down.
func (c *Controller) Halted() bool {
	return c.halted.Load()
}

// EmergencyShutdown deactivates every agent, drains all lanes without
// processing, and halts the controller. Subsequent dispatches to known
// agents fail with AGENT_INACTIVE; new registrations are refused.
func (c *Controller) EmergencyShutdown(reason string) {
	if c.halted.Swap(true) {
		return
	}

	dropped := c.lanes.drain()
	deactivated := c.registry.DeactivateAll()
	c.metrics.droppedOnShutdown.Add(int64(dropped))

	c.events.Append(eventlog.TypeEmergencyShutdown, map[string]interface{}{
		"reason":      reason,
		"dropped":     dropped,
		"deactivated": deactivated,
	})
	c.log.EmergencyShutdown(reason, dropped)
}
