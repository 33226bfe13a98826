package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/api"
)

func tokenCmd() *cli.Command {
	var (
		subject string
		ttl     time.Duration
	)

	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for the API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "subject",
				Aliases:     []string{"s"},
				Usage:       "token subject (used for per-client rate limiting)",
				Required:    true,
				Destination: &subject,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "token lifetime (default auth.token_ttl)",
				Destination: &ttl,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if cfg.Auth.Secret == "" {
				return cli.Exit("error: auth.secret is not set (config or TEXTCAT_JWT_SECRET)", 1)
			}
			auth := api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			token, expires, err := auth.Issue(subject, ttl)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			fmt.Println(token)
			fmt.Printf("# expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
}
