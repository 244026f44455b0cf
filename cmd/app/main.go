package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sqliteadapter "github.com/scorpionhol/pointage/internal/adapters/db/sqlite"
	httpadapter "github.com/scorpionhol/pointage/internal/adapters/http"
	rpcadapter "github.com/scorpionhol/pointage/internal/adapters/rpcjson"
	"github.com/scorpionhol/pointage/internal/application"
	"github.com/scorpionhol/pointage/internal/domain"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "pointage",
		Usage: "Attendance tracking server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			agentsCommand(),
			punchCommand(),
			historyCommand(),
			auditCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServer(ctx, ":8080", "/tmp/pointage.sock", "pointage.db", "admin", "1234")
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP server and badge RPC socket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address", Sources: cli.EnvVars("POINTAGE_ADDR")},
			&cli.StringFlag{Name: "rpc-socket", Value: "/tmp/pointage.sock", Usage: "JSON-RPC unix socket path", Sources: cli.EnvVars("POINTAGE_RPC_SOCKET")},
			&cli.StringFlag{Name: "db-path", Value: "pointage.db", Usage: "SQLite database path", Sources: cli.EnvVars("POINTAGE_DB")},
			&cli.StringFlag{Name: "bootstrap-admin-user", Value: "admin", Usage: "initial admin username", Sources: cli.EnvVars("POINTAGE_ADMIN_USER")},
			&cli.StringFlag{Name: "bootstrap-admin-password", Value: "1234", Usage: "initial admin password when users are empty", Sources: cli.EnvVars("POINTAGE_ADMIN_PASSWORD")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("addr"), c.String("rpc-socket"), c.String("db-path"), c.String("bootstrap-admin-user"), c.String("bootstrap-admin-password"))
		},
	}
}

func runServer(ctx context.Context, addr, rpcSocket, dbPath, bootstrapUser, bootstrapPassword string) error {
	db, err := sqliteadapter.Open(dbPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := sqliteadapter.NewAttendanceRepository(db)
	service := application.NewAttendanceService(repo)
	if err := service.BootstrapAdmin(ctx, bootstrapUser, bootstrapPassword); err != nil {
		return err
	}

	router := httpadapter.NewRouter(service)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(rpcSocket, service)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	log.Printf("json-rpc listening on unix://%s", rpcSocket)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds"},
					&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080"},
					&cli.StringFlag{Name: "socket", Value: "/tmp/pointage.sock"},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "token-name", Value: "cli"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					var out struct {
						Token    string `json:"token"`
						Username string `json:"username"`
					}
					err := doLogin(ctx, cfg, c.String("username"), c.String("password"), c.String("token-name"), &out)
					if err != nil {
						return err
					}
					cfg.Token = out.Token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s\n", out.Username)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						ID       uint   `json:"id"`
						Username string `json:"username"`
					}
					if err := doWhoAmI(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", uintToString(out.ID)}, {"username", out.Username}})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func agentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "Agent directory commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List agents",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.Agent
					if err := doAgentsList(ctx, cfg, c.String("q"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAgents(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create agent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "nom", Required: true},
					&cli.StringFlag{Name: "poste", Required: true},
					&cli.StringFlag{Name: "matricule"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var matricule *string
					if c.IsSet("matricule") {
						v := c.String("matricule")
						matricule = &v
					}
					var out domain.Agent
					if err := doAgentsCreate(ctx, cfg, c.String("nom"), c.String("poste"), matricule, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", uintToString(out.ID)}, {"nom", out.Name}, {"poste", out.Note}, {"matricule", formatMaybeString(out.BadgeCode)}})
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete agent and its punch events",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doAgentsDelete(ctx, cfg, c.Uint("id"), nil); err != nil {
						return err
					}
					fmt.Println("deleted")
					return nil
				},
			},
		},
	}
}

func punchCommand() *cli.Command {
	return &cli.Command{
		Name:  "punch",
		Usage: "Record a punch by badge code or agent id",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "badge", Required: true},
			&cli.StringFlag{Name: "type", Usage: "arrivee, depart or empty for badge"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out struct {
				OK  bool   `json:"ok"`
				Nom string `json:"nom"`
			}
			if err := doPunch(ctx, cfg, c.String("badge"), c.String("type"), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			fmt.Printf("pointage enregistre pour %s\n", out.Nom)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show daily attendance history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "nom", Usage: "filter by agent name substring"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out []domain.DailyRecord
			if err := doHistory(ctx, cfg, c.String("nom"), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printHistory(out)
			return nil
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent audit records",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.AuditRecord
					if err := doAuditList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAuditRecords(out)
					return nil
				},
			},
		},
	}
}
