package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func doLogin(ctx context.Context, cfg cliConfig, username, password, tokenName string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.login", map[string]any{
			"username":   username,
			"password":   password,
			"token_name": tokenName,
		}, out)
	}
	client := newAPIClient(cfg.Server, "")
	return client.request(ctx, http.MethodPost, "/api/auth/login", map[string]any{
		"username":   username,
		"password":   password,
		"token_name": tokenName,
	}, out)
}

func doWhoAmI(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.whoami", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/auth/whoami", nil, out)
}

func doAgentsList(ctx context.Context, cfg cliConfig, q string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "agents.list", map[string]any{"token": cfg.Token, "q": q, "limit": 200}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	path := "/api/agents"
	if q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doAgentsCreate(ctx context.Context, cfg cliConfig, nom, poste string, matricule *string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "agents.create", map[string]any{"token": cfg.Token, "nom": nom, "poste": poste, "matricule": matricule}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/agents", map[string]any{"nom": nom, "poste": poste, "matricule": matricule}, out)
}

func doAgentsDelete(ctx context.Context, cfg cliConfig, id uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "agents.delete", map[string]any{"token": cfg.Token, "id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodDelete, "/api/agents/"+uintToString(id), nil, out)
}

func doPunch(ctx context.Context, cfg cliConfig, badge, punchType string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "punch.record", map[string]any{"token": cfg.Token, "badge": badge, "type": punchType}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/pointage", map[string]any{"badge": badge, "type": punchType}, out)
}

func doHistory(ctx context.Context, cfg cliConfig, nom string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "history.list", map[string]any{"token": cfg.Token, "nom": nom}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	path := "/api/historique"
	if nom != "" {
		path += "?nom=" + url.QueryEscape(nom)
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doAuditList(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "audit.list", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/audit/logs", nil, out)
}

func uintToString(v uint) string {
	return fmt.Sprintf("%d", v)
}
