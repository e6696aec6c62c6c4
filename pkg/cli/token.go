package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/trickpatty/hearthsync/pkg/cli/config"
	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/usecase"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdToken() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage client credentials",
		Commands: []*cli.Command{
			cmdTokenIssue(),
			cmdTokenRevoke(),
		},
	}
}

func cmdTokenIssue() *cli.Command {
	var tenantID string
	var subject string
	var ttl time.Duration
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tenant",
			Usage:       "Tenant (family) ID the credential is scoped to",
			Required:    true,
			Sources:     cli.EnvVars("HEARTHSYNC_TENANT_ID"),
			Destination: &tenantID,
		},
		&cli.StringFlag{
			Name:        "subject",
			Usage:       "Client description stored with the credential",
			Value:       "cli",
			Destination: &subject,
		},
		&cli.DurationFlag{
			Name:        "ttl",
			Usage:       "Credential lifetime",
			Value:       usecase.DefaultTokenTTL,
			Destination: &ttl,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "issue",
		Usage: "Issue a new client credential for a tenant",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			authUC := usecase.NewAuthUseCase(repo, usecase.WithTokenTTL(ttl))
			token, err := authUC.IssueToken(ctx, types.TenantID(tenantID), subject)
			if err != nil {
				return goerr.Wrap(err, "failed to issue token")
			}

			// The secret is shown exactly once; only its owner ever sees it.
			fmt.Printf("Token ID:   %s\n", token.ID)
			fmt.Printf("Secret:     %s\n", token.Secret)
			fmt.Printf("Credential: %s:%s\n", token.ID, token.Secret)
			fmt.Printf("Expires:    %s\n", token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func cmdTokenRevoke() *cli.Command {
	var tokenID string
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Token ID to revoke",
			Required:    true,
			Destination: &tokenID,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "revoke",
		Usage: "Revoke a client credential",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			authUC := usecase.NewAuthUseCase(repo)
			if err := authUC.RevokeToken(ctx, auth.TokenID(tokenID)); err != nil {
				return goerr.Wrap(err, "failed to revoke token")
			}

			fmt.Printf("Token %s revoked\n", tokenID)
			return nil
		},
	}
}
