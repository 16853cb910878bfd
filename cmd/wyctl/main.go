// Command wyctl is the command line client for the platform matching
// backend. It logs in, lists the platform catalogue and runs keyword
// spreadsheet matching without the browser console.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/analysis"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/lookup"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/resource"
	"github.com/13879107157/wyclient/model"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := newApp(os.Stdout).Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	out    io.Writer
	logger *zap.Logger
}

func newApp(out io.Writer) *cli.Command {
	a := &app{out: out, logger: zap.NewNop()}
	return &cli.Command{
		Name:  "wyctl",
		Usage: "Platform matching backend client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Usage: "backend base URL", Sources: cli.EnvVars("WYCLIENT_BACKEND_BASE_URL")},
			&cli.StringFlag{Name: "session-file", Usage: "where the login is kept (default ~/.wyclient/config.json)", Sources: cli.EnvVars("WYCLIENT_SESSION_FILE")},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "backend request timeout"},
			&cli.StringFlag{Name: "log-level", Value: "warn"},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := observability.NewCLILogger(c.String("log-level"))
			if err != nil {
				return ctx, err
			}
			a.logger = logger
			return ctx, nil
		},
		Commands: []*cli.Command{
			a.authCommand(),
			a.typesCommand(),
			a.groupsCommand(),
			a.platformsCommand(),
			a.matchCommand(),
			a.exportCommand(),
		},
	}
}

func (a *app) env(c *cli.Command) (*env, error) {
	return newEnv(c, a.out, a.logger)
}

func (a *app) authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in and remember the backend token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("WYCLIENT_PASSWORD")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := a.env(c)
					if err != nil {
						return err
					}
					res := e.services.Auth.Login(ctx, model.Credentials{Username: c.String("username"), Password: c.String("password")})
					if !res.OK() {
						return failure(res.Err)
					}
					sess, err := e.sessions.Open(ctx, res.Value.Token, res.Value.User)
					if err != nil {
						return err
					}
					if profile := e.services.Auth.User(ctx, sess.Token, sess.User.ID); profile.OK() {
						if err := e.sessions.SetProfile(ctx, sess.ID, profile.Value); err != nil {
							e.logger.Warn("caching user profile", zap.Error(err))
						}
					}
					fmt.Fprintf(e.out, "logged in as %s\n", res.Value.User.Username)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show the logged-in user after checking the token is still accepted",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := a.env(c)
					if err != nil {
						return err
					}
					ctx, sess, err := e.authed(ctx)
					if err != nil {
						return err
					}
					if probe := e.services.Auth.Probe(ctx, sess.Token); !probe.OK() {
						if err := e.sessions.Expire(ctx, sess.ID); err != nil {
							e.logger.Warn("expiring session", zap.Error(err))
						}
						return failure(model.NewSessionExpiredError())
					}
					user := sess.CachedUser()
					if c.Bool("json") {
						return printJSON(e.out, user)
					}
					printKV(e.out, [][2]string{{"id", itoa(user.ID)}, {"username", user.Username}})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Forget the stored login",
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := a.env(c)
					if err != nil {
						return err
					}
					if _, sess, err := e.authed(ctx); err == nil {
						if err := e.sessions.Close(ctx, sess.ID); err != nil {
							return err
						}
					}
					fmt.Fprintln(e.out, "logged out")
					return nil
				},
			},
		},
	}
}

func listFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "q", Usage: "case-insensitive search"},
		&cli.IntFlag{Name: "page", Value: 1},
		&cli.IntFlag{Name: "page-size", Value: resource.DefaultPageSize},
		&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
	}
}

func listQuery(c *cli.Command) resource.Query {
	return resource.Query{Search: c.String("q"), Page: c.Int("page"), PageSize: c.Int("page-size")}
}

func (a *app) typesCommand() *cli.Command {
	return &cli.Command{
		Name:  "types",
		Usage: "Platform type commands",
		Commands: []*cli.Command{{
			Name:  "list",
			Usage: "List platform types",
			Flags: listFlags(),
			Action: func(ctx context.Context, c *cli.Command) error {
				e, err := a.env(c)
				if err != nil {
					return err
				}
				ctx, _, err = e.authed(ctx)
				if err != nil {
					return err
				}
				res := resource.NewTypes(e.services.Types, e.logger).List(ctx, listQuery(c))
				if !res.OK() {
					return failure(res.Err)
				}
				if c.Bool("json") {
					return printJSON(e.out, res.Value)
				}
				rows := make([][]string, 0, len(res.Value.Items))
				for _, t := range res.Value.Items {
					rows = append(rows, []string{itoa(t.ID), t.Name, orDash(t.Description)})
				}
				printTable(e.out, []string{"ID", "NAME", "DESCRIPTION"}, rows)
				return nil
			},
		}},
	}
}

func (a *app) groupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "groups",
		Usage: "Platform group commands",
		Commands: []*cli.Command{{
			Name:  "list",
			Usage: "List platform groups",
			Flags: listFlags(),
			Action: func(ctx context.Context, c *cli.Command) error {
				e, err := a.env(c)
				if err != nil {
					return err
				}
				ctx, _, err = e.authed(ctx)
				if err != nil {
					return err
				}
				res := resource.NewGroups(e.services.Groups, e.logger).List(ctx, listQuery(c))
				if !res.OK() {
					return failure(res.Err)
				}
				if c.Bool("json") {
					return printJSON(e.out, res.Value)
				}
				rows := make([][]string, 0, len(res.Value.Items))
				for _, g := range res.Value.Items {
					rows = append(rows, []string{itoa(g.ID), g.Name, g.Status.Label(), itoa(int64(g.Order))})
				}
				printTable(e.out, []string{"ID", "NAME", "STATUS", "ORDER"}, rows)
				return nil
			},
		}},
	}
}

func (a *app) platformsCommand() *cli.Command {
	return &cli.Command{
		Name:  "platforms",
		Usage: "Platform commands",
		Commands: []*cli.Command{{
			Name:  "list",
			Usage: "List platforms with their group and type names",
			Flags: listFlags(),
			Action: func(ctx context.Context, c *cli.Command) error {
				e, err := a.env(c)
				if err != nil {
					return err
				}
				ctx, _, err = e.authed(ctx)
				if err != nil {
					return err
				}
				lookups := lookup.NewProvider(e.services.Groups, e.services.Types, config.Defaults().Lookup.Cache, nil)
				res := resource.NewPlatforms(e.services.Platforms, lookups, e.logger).Labeled(ctx, listQuery(c))
				if !res.OK() {
					return failure(res.Err)
				}
				if c.Bool("json") {
					return printJSON(e.out, res.Value)
				}
				rows := make([][]string, 0, len(res.Value.Items))
				for _, p := range res.Value.Items {
					rows = append(rows, []string{itoa(p.ID), p.Name, p.GroupLabel, p.TypeLabel, strings.Join(p.MatchRule, ",")})
				}
				printTable(e.out, []string{"ID", "NAME", "GROUP", "TYPE", "MATCH RULES"}, rows)
				return nil
			},
		}},
	}
}

func matchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "dimensions", Aliases: []string{"columns"}, Usage: "columns to tally (comma-separated or repeated)"},
		&cli.StringFlag{Name: "url-column", Usage: "column holding the keyword URL"},
		&cli.StringSliceFlag{Name: "group", Usage: "keep only these platform groups"},
		&cli.StringSliceFlag{Name: "platform", Usage: "keep only these platforms"},
	}
}

// upload matches the file named by the first argument in a fresh workspace
// and applies the group and platform filters.
func (a *app) upload(ctx context.Context, c *cli.Command) (*env, *analysis.Workspace, analysis.Snapshot, error) {
	path := c.Args().First()
	if path == "" {
		return nil, nil, analysis.Snapshot{}, fmt.Errorf("usage: wyctl %s <file.xlsx>", c.Name)
	}
	e, err := a.env(c)
	if err != nil {
		return nil, nil, analysis.Snapshot{}, err
	}
	ctx, _, err = e.authed(ctx)
	if err != nil {
		return nil, nil, analysis.Snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, analysis.Snapshot{}, err
	}

	ws := analysis.NewWorkspace(e.services.Matching, e.logger, nil)
	ws.SelectFile(filepath.Base(path), data)
	ws.SetURLColumn(c.String("url-column"))
	dims := splitCSV(c.StringSlice("dimensions"))
	if _, err := ws.Upload(ctx, dims); err != nil {
		return nil, nil, analysis.Snapshot{}, failure(model.AsEnvelope(err))
	}
	groups := splitCSV(c.StringSlice("group"))
	platforms := splitCSV(c.StringSlice("platform"))
	snap := ws.SetFilters(analysis.FilterUpdate{Groups: &groups, Platforms: &platforms, Dimensions: &dims})
	return e, ws, snap, nil
}

func (a *app) matchCommand() *cli.Command {
	return &cli.Command{
		Name:      "match",
		Usage:     "Match a keyword spreadsheet against the platform rules",
		ArgsUsage: "<file.xlsx>",
		Flags:     append(matchFlags(), &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, _, snap, err := a.upload(ctx, c)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(e.out, snap)
			}
			for _, note := range snap.Notes {
				fmt.Fprintln(e.out, "note:", note)
			}
			printKV(e.out, [][2]string{{"file", snap.FileName}, {"total rows", itoa(int64(snap.TotalRows))}})
			fmt.Fprintln(e.out)
			var rows [][]string
			for _, g := range snap.Groups {
				rows = append(rows, []string{g.GroupName, "", itoa(int64(g.MatchCount))})
				for _, p := range g.Children {
					rows = append(rows, []string{"", p.PlatformName, itoa(int64(p.MatchCount))})
				}
			}
			printTable(e.out, []string{"GROUP", "PLATFORM", "MATCHES"}, rows)
			summary, err := analysis.SummarizeStatistics(snap.Statistics)
			if err != nil {
				return nil
			}
			for _, dim := range summary {
				fmt.Fprintf(e.out, "\n%s (%d)\n", dim.Dimension, dim.Total)
				var vals [][]string
				for _, vc := range dim.Values {
					vals = append(vals, []string{vc.Value, itoa(vc.Count)})
				}
				printTable(e.out, []string{"VALUE", "COUNT"}, vals)
			}
			return nil
		},
	}
}

func (a *app) exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Match a spreadsheet and write the filtered result as xlsx",
		ArgsUsage: "<file.xlsx>",
		Flags:     append(matchFlags(), &cli.StringFlag{Name: "out", Value: analysis.ExportName, Usage: "output workbook"}),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, ws, _, err := a.upload(ctx, c)
			if err != nil {
				return err
			}
			rows, err := ws.Export()
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := analysis.WriteWorkbook(&buf, rows); err != nil {
				return err
			}
			if err := os.WriteFile(c.String("out"), buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "wrote %d rows to %s\n", len(rows), c.String("out"))
			return nil
		},
	}
}
