// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/nivex/fastgate/internal/config"
	"github.com/nivex/fastgate/internal/core"
	"github.com/nivex/fastgate/internal/event"
	"github.com/nivex/fastgate/internal/log"
	"github.com/nivex/fastgate/internal/metrics"
	"github.com/nivex/fastgate/internal/whitelist"
)

// CommandHandler handles control plane commands.
type CommandHandler struct {
	tables       *whitelist.Tables
	emitter      *event.Emitter
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    int64  // Unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(tables *whitelist.Tables, emitter *event.Emitter) *CommandHandler {
	return &CommandHandler{
		tables:    tables,
		emitter:   emitter,
		startTime: time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "rule_upsert", "rule_remove"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
	ErrCodeTableFull      = -32010 // Whitelist table at capacity
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "rule_upsert":
		return h.handleRuleUpsert(ctx, cmd)
	case "rule_remove":
		return h.handleRuleRemove(ctx, cmd)
	case "rule_list":
		return h.handleRuleList(ctx, cmd)
	case "log_level_set":
		return h.handleLogLevelSet(ctx, cmd)
	case "daemon_status":
		return h.handleDaemonStatus(ctx, cmd)
	case "daemon_shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

// RuleUpsertParams represents parameters for the rule_upsert command.
type RuleUpsertParams struct {
	Rule config.RuleConfig `json:"rule"`
}

// handleRuleUpsert inserts or overwrites one whitelist rule.
func (h *CommandHandler) handleRuleUpsert(_ context.Context, cmd Command) Response {
	var params RuleUpsertParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid params: %v", err),
			},
		}
	}

	if err := ApplyRule(h.tables, params.Rule); err != nil {
		code := ErrCodeInternalError
		if err == core.ErrTableFull {
			code = ErrCodeTableFull
		}
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    code,
				Message: fmt.Sprintf("upsert rule failed: %v", err),
			},
		}
	}

	syncWhitelistGauges(h.tables)
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "upserted",
		},
	}
}

// RuleRemoveParams represents parameters for the rule_remove command.
type RuleRemoveParams struct {
	Role    string `json:"role"`
	Address string `json:"address,omitempty"`
	Port    uint16 `json:"port,omitempty"`
}

// handleRuleRemove removes one whitelist rule. Removing an absent
// rule succeeds quietly.
func (h *CommandHandler) handleRuleRemove(_ context.Context, cmd Command) Response {
	var params RuleRemoveParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid params: %v", err),
			},
		}
	}

	switch params.Role {
	case "client":
		addr, err := netip.ParseAddr(params.Address)
		if err != nil {
			return Response{
				ID: cmd.ID,
				Error: &ErrorInfo{
					Code:    ErrCodeInvalidParams,
					Message: fmt.Sprintf("bad address %q: %v", params.Address, err),
				},
			}
		}
		h.tables.RemoveSrc(addr)
		if addr.Unmap().Is4() {
			metrics.RuleUpdatesTotal.WithLabelValues("src_v4", "remove").Inc()
		} else {
			metrics.RuleUpdatesTotal.WithLabelValues("src_v6", "remove").Inc()
		}
	case "listener":
		if params.Port == 0 {
			return Response{
				ID: cmd.ID,
				Error: &ErrorInfo{
					Code:    ErrCodeInvalidParams,
					Message: "listener rule requires port",
				},
			}
		}
		h.tables.DstPort.Remove(params.Port)
		metrics.RuleUpdatesTotal.WithLabelValues("dst_port", "remove").Inc()
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("role must be client or listener, got %q", params.Role),
			},
		}
	}

	syncWhitelistGauges(h.tables)
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "removed",
		},
	}
}

// ruleView is the wire representation of one listed rule.
type ruleView struct {
	Role      string   `json:"role"`
	Address   string   `json:"address,omitempty"`
	Port      uint16   `json:"port,omitempty"`
	Protocols []string `json:"protocols"`
}

// handleRuleList returns a snapshot of all whitelist entries.
func (h *CommandHandler) handleRuleList(_ context.Context, cmd Command) Response {
	var rules []ruleView
	for _, e := range h.tables.SrcV4.List() {
		rules = append(rules, ruleView{
			Role:      "client",
			Address:   e.Addr.String(),
			Protocols: core.MaskNames(e.Mask),
		})
	}
	for _, e := range h.tables.SrcV6.List() {
		rules = append(rules, ruleView{
			Role:      "client",
			Address:   e.Addr.String(),
			Protocols: core.MaskNames(e.Mask),
		})
	}
	for _, e := range h.tables.DstPort.List() {
		rules = append(rules, ruleView{
			Role:      "listener",
			Port:      e.Port,
			Protocols: core.MaskNames(e.Mask),
		})
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"rules": rules,
			"count": len(rules),
			"capacity": map[string]int{
				"src_v4":   h.tables.SrcV4.Capacity(),
				"src_v6":   h.tables.SrcV6.Capacity(),
				"dst_port": h.tables.DstPort.Capacity(),
			},
		},
	}
}

// LogLevelSetParams represents parameters for the log_level_set command.
type LogLevelSetParams struct {
	Level string `json:"level"` // debug / info / warn / error
}

// handleLogLevelSet adjusts both the logger verbosity and the event
// emitter's severity floor at runtime.
func (h *CommandHandler) handleLogLevelSet(_ context.Context, cmd Command) Response {
	var params LogLevelSetParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid params: %v", err),
			},
		}
	}

	lvl, err := log.ParseLevel(params.Level)
	if err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid level: %v", err),
			},
		}
	}
	sev, err := event.ParseSeverity(params.Level)
	if err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid level: %v", err),
			},
		}
	}

	log.SetLevel(lvl)
	if h.emitter != nil {
		h.emitter.SetMinSeverity(sev)
	}

	slog.Info("log level changed", "level", params.Level)
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"level": params.Level,
		},
	}
}

// handleDaemonStatus returns daemon status information.
func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	uptimeSeconds := time.Now().Unix() - h.startTime

	result := map[string]interface{}{
		"version":    "0.1.0",
		"uptime_sec": uptimeSeconds,
		"rules": map[string]int{
			"src_v4":   h.tables.SrcV4.Len(),
			"src_v6":   h.tables.SrcV6.Len(),
			"dst_port": h.tables.DstPort.Len(),
		},
	}
	if h.emitter != nil {
		result["events"] = map[string]interface{}{
			"min_severity": h.emitter.MinSeverity().String(),
			"emitted":      h.emitter.Emitted(),
			"dropped":      h.emitter.Dropped(),
		}
	}

	return Response{
		ID:     cmd.ID,
		Result: result,
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "shutdown handler not registered",
			},
		}
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}

// syncWhitelistGauges refreshes the per-table entry-count gauges after
// a control-plane mutation.
func syncWhitelistGauges(tables *whitelist.Tables) {
	metrics.WhitelistEntries.WithLabelValues("src_v4").Set(float64(tables.SrcV4.Len()))
	metrics.WhitelistEntries.WithLabelValues("src_v6").Set(float64(tables.SrcV6.Len()))
	metrics.WhitelistEntries.WithLabelValues("dst_port").Set(float64(tables.DstPort.Len()))
}

// ApplyRule routes a validated rule into the matching whitelist table.
func ApplyRule(tables *whitelist.Tables, r config.RuleConfig) error {
	if err := r.Validate(); err != nil {
		return err
	}
	mask, err := r.Mask()
	if err != nil {
		return err
	}

	switch r.Role {
	case "client":
		addr, err := netip.ParseAddr(r.Address)
		if err != nil {
			return fmt.Errorf("%w: bad address %q: %v", core.ErrConfigInvalid, r.Address, err)
		}
		if err := tables.UpsertSrc(addr, mask); err != nil {
			return err
		}
		if addr.Unmap().Is4() {
			metrics.RuleUpdatesTotal.WithLabelValues("src_v4", "upsert").Inc()
		} else {
			metrics.RuleUpdatesTotal.WithLabelValues("src_v6", "upsert").Inc()
		}
	case "listener":
		if err := tables.DstPort.Upsert(r.Port, mask); err != nil {
			return err
		}
		metrics.RuleUpdatesTotal.WithLabelValues("dst_port", "upsert").Inc()
	}
	return nil
}
