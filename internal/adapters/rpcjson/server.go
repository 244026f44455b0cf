package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/scorpionhol/pointage/internal/application"
	"github.com/scorpionhol/pointage/internal/domain"
)

// Server answers JSON-RPC 2.0 over a unix socket. Badge devices on the same
// host and the CLI use it instead of HTTP; auth is the same device-token
// scheme, with the token carried in each request's params.
type Server struct {
	service  *application.AttendanceService
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Start(path string, service *application.AttendanceService) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "auth.login":
		var p struct {
			Username  string `json:"username"`
			Password  string `json:"password"`
			TokenName string `json:"token_name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		u, token, err := s.service.IssueDeviceToken(ctx, p.Username, p.Password, p.TokenName, nil)
		if err != nil {
			return response{JSONRPC: "2.0", Error: &rpcError{Code: -32001, Message: "invalid credentials"}, ID: req.ID}
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"token": token, "username": u.Username}, ID: req.ID}

	case "auth.whoami":
		identity, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"id": identity.User.ID, "username": identity.User.Username}, ID: req.ID}

	case "punch.record":
		identity, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token string `json:"token"`
			Badge string `json:"badge"`
			Type  string `json:"type"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		agent, err := s.service.RecordPunch(ctx, p.Badge, p.Type, application.SourceRPC)
		if err != nil {
			return appError(req.ID, err)
		}
		s.service.WriteAudit(ctx, &identity.User.ID, "punch.rpc", "agent", &agent.ID, "rpc")
		return response{JSONRPC: "2.0", Result: map[string]any{"ok": true, "nom": agent.Name}, ID: req.ID}

	case "history.list":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token string `json:"token"`
			Nom   string `json:"nom"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		records, err := s.service.BuildHistory(ctx, p.Nom)
		if err != nil {
			return internalError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: records, ID: req.ID}

	case "agents.list":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token string `json:"token"`
			Q     string `json:"q"`
			Limit int    `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		agents, err := s.service.ListAgents(ctx, p.Q, p.Limit)
		if err != nil {
			return internalError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: agents, ID: req.ID}

	case "agents.create":
		identity, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token     string  `json:"token"`
			Nom       string  `json:"nom"`
			Poste     string  `json:"poste"`
			Matricule *string `json:"matricule"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		agent, err := s.service.CreateAgent(ctx, p.Nom, p.Poste, p.Matricule)
		if err != nil {
			return appError(req.ID, err)
		}
		s.service.WriteAudit(ctx, &identity.User.ID, "agent.create", "agent", &agent.ID, "rpc")
		return response{JSONRPC: "2.0", Result: agent, ID: req.ID}

	case "agents.delete":
		identity, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token string `json:"token"`
			ID    uint   `json:"id"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.DeleteAgent(ctx, p.ID); err != nil {
			return appError(req.ID, err)
		}
		s.service.WriteAudit(ctx, &identity.User.ID, "agent.delete", "agent", &p.ID, "rpc")
		return response{JSONRPC: "2.0", Result: map[string]any{"ok": true}, ID: req.ID}

	case "audit.list":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token string `json:"token"`
			Limit int    `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		logs, err := s.service.ListAuditLogs(ctx, p.Limit)
		if err != nil {
			return internalError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: logs, ID: req.ID}
	}

	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
}

func (s *Server) authz(ctx context.Context, req request) (domain.Identity, response, bool) {
	var p struct {
		Token string `json:"token"`
	}
	if !decodeParams(req.Params, &p) || strings.TrimSpace(p.Token) == "" {
		return domain.Identity{}, response{JSONRPC: "2.0", Error: &rpcError{Code: -32000, Message: "unauthorized"}, ID: req.ID}, false
	}
	identity, err := s.service.AuthenticateBearerToken(ctx, p.Token)
	if err != nil {
		return domain.Identity{}, response{JSONRPC: "2.0", Error: &rpcError{Code: -32000, Message: "unauthorized"}, ID: req.ID}, false
	}
	return identity, response{}, true
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

func internalError(id any, err error) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32603, Message: err.Error()}, ID: id}
}

func appError(id any, err error) response {
	code := -32002
	switch {
	case errors.Is(err, domain.ErrBadgeRequired):
		code = -32010
	case errors.Is(err, domain.ErrAgentNotFound), errors.Is(err, domain.ErrNotFound):
		code = -32011
	case errors.Is(err, domain.ErrAgentFieldsRequired):
		code = -32012
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: id}
}
