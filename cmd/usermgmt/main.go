// Command usermgmt creates, deletes and promotes portal users. The portal has
// no registration page, so accounts are managed here.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	appLogger "github.com/FACorreiaa/mic-data-portal/app/logger"
	"github.com/FACorreiaa/mic-data-portal/config"
	"github.com/FACorreiaa/mic-data-portal/internal/api/user"
	"github.com/FACorreiaa/mic-data-portal/internal/container"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

const usage = `usage: usermgmt <command> [flags]

commands:
  add     --name NAME --email EMAIL --password PASSWORD [--admin]
  delete  --email EMAIL
  admin   --email EMAIL --set=true|false
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}
	logger := appLogger.New(os.Stderr, os.Getenv("APP_ENV"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := container.NewUserTool(ctx, &cfg, logger)
	if err != nil {
		log.Fatalf("FATAL: Error opening credential store: %v", err)
	}
	defer c.Close(context.Background())

	if err := run(ctx, c.UserService, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		c.Close(context.Background())
		os.Exit(1)
	}
}

// run executes one subcommand against svc.
func run(ctx context.Context, svc user.UserService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "add":
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "login email")
		password := fs.String("password", "", "plaintext password, hashed before storing")
		admin := fs.Bool("admin", false, "grant admin")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		u, err := svc.CreateUser(ctx, *name, *email, *password, *admin)
		if err != nil {
			if errors.Is(err, types.ErrConflict) {
				return fmt.Errorf("a user with email %s already exists", *email)
			}
			return err
		}
		fmt.Fprintf(out, "created user %s (%s) admin=%t\n", u.Email, u.ID, u.Admin)

	case "delete":
		email := fs.String("email", "", "login email")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *email == "" {
			return fmt.Errorf("%w: --email is required", errUsage)
		}
		if err := svc.DeleteUserByEmail(ctx, *email); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted user %s\n", *email)

	case "admin":
		email := fs.String("email", "", "login email")
		set := fs.Bool("set", true, "true grants admin, false revokes it")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *email == "" {
			return fmt.Errorf("%w: --email is required", errUsage)
		}
		u, err := svc.SetAdminByEmail(ctx, *email, *set)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "user %s admin=%t\n", u.Email, u.Admin)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}
