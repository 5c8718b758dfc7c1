// Command console is an interactive staff console against the local
// identity store. It embeds the session manager directly instead of going
// through the HTTP API.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/config"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	"github.com/minghua-center/minghua/internal/identity/local"
	invitationdomain "github.com/minghua-center/minghua/internal/invitation/domain"
	invitationrepository "github.com/minghua-center/minghua/internal/invitation/repository"
	invitationservice "github.com/minghua-center/minghua/internal/invitation/service"
	"github.com/minghua-center/minghua/internal/logger"
	"github.com/minghua-center/minghua/internal/migration"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	profilerepository "github.com/minghua-center/minghua/internal/profile/repository"
	"github.com/minghua-center/minghua/internal/role"
	"github.com/minghua-center/minghua/internal/session"
	sessiondomain "github.com/minghua-center/minghua/internal/session/domain"
	"github.com/minghua-center/minghua/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		fx.Provide(local.NewProvider),
		fx.Provide(func(p *local.Provider) identitydomain.Provider { return p }),
		fx.Provide(profilerepository.New),
		fx.Provide(invitationrepository.New),
		fx.Provide(invitationservice.New),
		session.Module,
		fx.Invoke(runConsole),
	).Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

type consoleParams struct {
	fx.In

	Log         *zap.Logger
	Sessions    sessiondomain.Service
	Provider    identitydomain.Provider
	Invitations *invitationservice.Service
	InviteRepo  invitationdomain.Repository
	Clock       clock.Clock
}

func runConsole(lc fx.Lifecycle, sh fx.Shutdowner, p consoleParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go loop(p, sh)
			return nil
		},
	})
}

func loop(p consoleParams, sh fx.Shutdowner) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: login <email> <password> | whoami | invite <email> <role> | accept <password> <full name> | logout | exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		ctx := context.Background()
		switch fields[0] {
		case "login":
			if len(fields) != 3 {
				fmt.Println("usage: login <email> <password>")
				continue
			}
			if _, err := p.Sessions.SignIn(ctx, fields[1], fields[2]); err != nil {
				fmt.Println("login failed:", err)
				continue
			}
			fmt.Println("signed in")

		case "whoami":
			printSnapshot(p.Sessions.State())

		case "invite":
			if len(fields) != 3 {
				fmt.Println("usage: invite <email> <role>")
				continue
			}
			snap := p.Sessions.State()
			target := profiledomain.Role(fields[2])
			if !role.Resolve(snap).CanInvite(target) {
				fmt.Println("your role may not issue this invitation")
				continue
			}
			invitation, err := p.Invitations.Invite(ctx, invitationservice.InviteRequest{
				Email:     fields[1],
				Role:      target,
				InvitedBy: snap.User.ID,
			})
			if err != nil {
				fmt.Println("invite failed:", err)
				continue
			}
			fmt.Printf("invitation %s for %s expires %s\n", invitation.ID, invitation.Email, invitation.ExpiresAt.Format("2006-01-02"))

		case "accept":
			if len(fields) < 3 {
				fmt.Println("usage: accept <password> <full name>")
				continue
			}
			flow := invitationservice.NewFlow(p.Log, p.Provider, p.InviteRepo,
				invitationservice.NewLocalFinalizer(p.Invitations), p.Clock)
			if err := flow.Verify(ctx); err != nil {
				fmt.Println("verify failed:", err)
				continue
			}
			result, err := flow.Submit(ctx, invitationservice.SubmitRequest{
				FullName:        strings.Join(fields[2:], " "),
				Password:        fields[1],
				ConfirmPassword: fields[1],
			})
			if err != nil {
				fmt.Println("accept failed:", err)
				continue
			}
			if result.Warning != "" {
				fmt.Println("accepted with warning:", result.Warning)
			} else {
				fmt.Println("accepted")
			}

		case "logout":
			if err := p.Sessions.SignOut(ctx); err != nil {
				fmt.Println("logout failed:", err)
				continue
			}
			fmt.Println("signed out")

		case "exit", "quit":
			_ = sh.Shutdown()
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
	_ = sh.Shutdown()
}

func printSnapshot(snap sessiondomain.Snapshot) {
	if !snap.Authenticated() {
		fmt.Println("not signed in")
		return
	}
	fmt.Println("user:", snap.User.Email)
	r := role.Resolve(snap)
	if snap.Profile == nil {
		fmt.Println("profile: none")
		return
	}
	fmt.Printf("role: %s active: %v owner: %v admin: %v officer: %v\n",
		r.Role(), r.IsActive(), r.IsOwner(), r.IsAdmin(), r.IsOfficer())
}
