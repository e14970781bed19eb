// Command desecdesk drives the client core without the graphical shell:
// profile management, cache-first zone and record listing, version
// history and queue inspection.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/poyrazK/desecdesk/internal/adapters/api"
	"github.com/poyrazK/desecdesk/internal/adapters/cache"
	"github.com/poyrazK/desecdesk/internal/adapters/history"
	"github.com/poyrazK/desecdesk/internal/adapters/profile"
	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/core/services"
)

func main() {
	app := &cli.App{
		Name:  "desecdesk",
		Usage: "headless core of the deSEC desktop client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Usage: "config root directory", EnvVars: []string{"DESECDESK_ROOT"}},
			&cli.StringFlag{Name: "password", Usage: "credential password", EnvVars: []string{"DESECDESK_PASSWORD"}},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			profilesCommand(),
			zonesCommand(),
			recordsCommand(),
			historyCommand(),
			queueCommand(),
			tokenCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	level := slog.LevelInfo
	if ctx.Bool("debug") {
		level = slog.LevelDebug
	}
	out := os.Stderr
	if root := configRoot(ctx); root != "" {
		logDir := filepath.Join(root, "logs")
		if err := os.MkdirAll(logDir, 0o700); err == nil {
			if f, err := os.OpenFile(filepath.Join(logDir, "desecdesk.log"),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
				out = f
			}
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))

	if addr := ctx.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
	}
	return nil
}

func configRoot(ctx *cli.Context) string {
	if root := ctx.String("root"); root != "" {
		return root
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "desecdesk")
}

// newFactory wires the per-profile adapters the way the desktop shell
// does.
func newFactory(profiles *profile.Store) services.SubsystemFactory {
	return func(p domain.Profile, s domain.Settings, token func() string) (services.Subsystems, error) {
		client := api.NewClient(s.APIURL, token, s.RateLimit, s.HTTPTimeout())
		cacheStore, err := cache.New(profiles.CacheDir(p.Name))
		if err != nil {
			return services.Subsystems{}, err
		}
		versions, err := history.New(profiles.VersionsDir(p.Name))
		if err != nil {
			return services.Subsystems{}, err
		}
		return services.Subsystems{Client: client, Cache: cacheStore, Versions: versions}, nil
	}
}

// withCore builds the full stack, runs fn, and tears everything down.
func withCore(ctx *cli.Context, fn func(core *services.Core) error) error {
	profiles, err := profile.New(configRoot(ctx))
	if err != nil {
		return err
	}
	dispatcher := services.NewSerialDispatcher()
	defer dispatcher.Close()

	core, err := services.NewCore(profiles, newFactory(profiles), dispatcher, services.NewSystemClock())
	if err != nil {
		return err
	}
	defer core.Close()

	if password := ctx.String("password"); password != "" {
		if err := core.Unlock(password); err != nil {
			return fmt.Errorf("unlock credential: %w", err)
		}
	}
	return fn(core)
}

// await submits through submit and blocks until the item is terminal.
func await(submit func(cb services.Callback) (*services.Handle, error)) (domain.QueueItem, error) {
	done := make(chan domain.QueueItem, 1)
	if _, err := submit(func(item domain.QueueItem) { done <- item }); err != nil {
		return domain.QueueItem{}, err
	}
	select {
	case item := <-done:
		return item, nil
	case <-time.After(2 * time.Minute):
		return domain.QueueItem{}, fmt.Errorf("timed out waiting for the queue")
	}
}

func profilesCommand() *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "manage configuration profiles",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list profiles",
				Action: func(ctx *cli.Context) error {
					profiles, err := profile.New(configRoot(ctx))
					if err != nil {
						return err
					}
					active, _ := profiles.Active()
					all, err := profiles.List()
					if err != nil {
						return err
					}
					for _, p := range all {
						marker := " "
						if p.Name == active.Name {
							marker = "*"
						}
						fmt.Printf("%s %-20s %s\n", marker, p.Name, p.DisplayName)
					}
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "create a profile",
				ArgsUsage: "<name> [display name]",
				Action: func(ctx *cli.Context) error {
					profiles, err := profile.New(configRoot(ctx))
					if err != nil {
						return err
					}
					p, err := profiles.Create(ctx.Args().Get(0), ctx.Args().Get(1))
					if err != nil {
						return err
					}
					fmt.Printf("created profile %s\n", p.Name)
					return nil
				},
			},
			{
				Name:      "switch",
				Usage:     "switch the active profile",
				ArgsUsage: "<name>",
				Action: func(ctx *cli.Context) error {
					profiles, err := profile.New(configRoot(ctx))
					if err != nil {
						return err
					}
					p, err := profiles.Switch(ctx.Args().Get(0))
					if err != nil {
						return err
					}
					fmt.Printf("active profile is now %s\n", p.Name)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a profile",
				ArgsUsage: "<name>",
				Action: func(ctx *cli.Context) error {
					profiles, err := profile.New(configRoot(ctx))
					if err != nil {
						return err
					}
					return profiles.Delete(ctx.Args().Get(0))
				},
			},
		},
	}
}

func zonesCommand() *cli.Command {
	return &cli.Command{
		Name:  "zones",
		Usage: "list zones (cache-first, refreshes when stale)",
		Action: func(ctx *cli.Context) error {
			return withCore(ctx, func(core *services.Core) error {
				zones := core.Zones()
				if len(zones) == 0 {
					item, err := await(func(cb services.Callback) (*services.Handle, error) {
						return core.Submit(domain.PriorityHigh, domain.CategoryZones, "List zones", api.ReqListZones(), cb)
					})
					if err != nil {
						return err
					}
					if item.Status != domain.StatusOK {
						return fmt.Errorf("list zones: %s", item.Result.Message)
					}
					if err := item.Result.Decode(&zones); err != nil {
						return err
					}
				}
				for _, z := range zones {
					state := "unpublished"
					if z.Published {
						state = "published"
					}
					fmt.Printf("%-40s %s\n", z.Name, state)
				}
				return nil
			})
		},
	}
}

func recordsCommand() *cli.Command {
	return &cli.Command{
		Name:      "records",
		Usage:     "list a zone's RRsets",
		ArgsUsage: "<zone>",
		Action: func(ctx *cli.Context) error {
			zone := ctx.Args().Get(0)
			if zone == "" {
				return fmt.Errorf("zone argument is required")
			}
			return withCore(ctx, func(core *services.Core) error {
				sets := core.Records(zone)
				if len(sets) == 0 {
					item, err := await(func(cb services.Callback) (*services.Handle, error) {
						return core.Submit(domain.PriorityHigh, domain.CategoryRecords, "List records", api.ReqListRRsets(zone), cb)
					})
					if err != nil {
						return err
					}
					if item.Status != domain.StatusOK {
						return fmt.Errorf("list records: %s", item.Result.Message)
					}
					if err := item.Result.Decode(&sets); err != nil {
						return err
					}
				}
				for _, set := range sets {
					for _, value := range set.Records {
						fmt.Printf("%-30s %6d %-10s %s\n", set.DisplayName(), set.TTL, set.Type, value)
					}
				}
				return nil
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "show a zone's snapshot log",
		ArgsUsage: "<zone>",
		Action: func(ctx *cli.Context) error {
			zone := ctx.Args().Get(0)
			if zone == "" {
				return fmt.Errorf("zone argument is required")
			}
			return withCore(ctx, func(core *services.Core) error {
				entries, err := core.Snapshots(zone)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%s  %s  %s\n", e.Hash[:12], e.Timestamp.Format(time.RFC3339), e.Message)
				}
				return nil
			})
		},
	}
}

func queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "dump the persisted queue history",
		Action: func(ctx *cli.Context) error {
			return withCore(ctx, func(core *services.Core) error {
				snap := core.Queue()
				fmt.Printf("paused: %v, pending: %d, history: %d\n", snap.Paused, len(snap.Pending), len(snap.History))
				for _, item := range snap.History {
					fmt.Printf("#%-6d %-8s %-12s %-10s %s\n",
						item.ID, item.Priority, item.Category, item.Status, item.Action)
				}
				return nil
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "store the API token for the active profile",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", Usage: "token secret", Required: true},
		},
		Action: func(ctx *cli.Context) error {
			password := ctx.String("password")
			if password == "" {
				return fmt.Errorf("--password is required to seal the token")
			}
			return withCore(ctx, func(core *services.Core) error {
				return core.SetToken(ctx.String("secret"), password)
			})
		},
	}
}
