package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/commons-cli/internal/session"
	"github.com/florianilch/commons-cli/internal/token"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate against the platform and store the credential",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "email",
				Usage: "account email (prompted when omitted)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	email := cmd.String("email")
	if email == "" {
		if email, err = promptLine("Email: "); err != nil {
			return err
		}
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	result, err := application.API.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if result.RequiresSecondFactor {
		code, err := promptLine("Verification code: ")
		if err != nil {
			return err
		}
		result, err = application.API.VerifySecondFactor(ctx, result.TransactionID, code)
		if err != nil {
			return fmt.Errorf("second factor verification failed: %w", err)
		}
	}

	if result.Credential.AccessToken == "" {
		return fmt.Errorf("login response carried no credential")
	}
	if err := application.Tokens.StoreCredential(ctx, result.Credential.AccessToken, result.Credential.RefreshToken); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	var profile *token.Profile
	if result.User != nil {
		normalized := token.ProfileFromUser(result.User)
		if err := application.Tokens.StoreProfile(ctx, normalized); err != nil {
			return fmt.Errorf("caching profile: %w", err)
		}
		profile = normalized
	} else {
		if profile, err = application.Tokens.FetchProfile(ctx); err != nil {
			return fmt.Errorf("fetching profile after login: %w", err)
		}
	}

	application.Sessions.Login(profile)
	fmt.Printf("Logged in as %s (%s)\n", profile.DisplayName, profile.Email)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "end the current session locally and (best-effort) remotely",
		Action: logoutAction,
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Migrator.Migrate(ctx)
	application.Sessions.Logout(ctx)
	fmt.Println("Logged out")
	return nil
}

func revokeAllCommand() *cli.Command {
	return &cli.Command{
		Name:   "revoke-all",
		Usage:  "revoke every session for this account, then log out locally",
		Action: revokeAllAction,
	}
}

func revokeAllAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Migrator.Migrate(ctx)
	application.Sessions.RevokeAll(ctx)
	fmt.Println("All sessions revoked")
	return nil
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "fetch and print the authoritative profile",
		Action: whoamiAction,
	}
}

func whoamiAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Bootstrap(ctx)
	application.Sessions.Refetch(ctx)

	snap := application.Sessions.State()
	if snap.Phase != session.PhaseAuthenticated {
		return fmt.Errorf("not logged in")
	}

	p := snap.Profile
	fmt.Printf("%s <%s>\n", p.DisplayName, p.Email)
	if p.Role != "" {
		fmt.Println("Role:", p.Role)
	}
	if p.AvatarURL != "" {
		fmt.Println("Avatar:", p.AvatarURL)
	}
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "print the local session state without contacting the platform",
		Action: statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Migrator.Migrate(ctx)

	access, err := application.Tokens.Access(ctx)
	if err != nil {
		fmt.Println("Session: none")
		return nil
	}

	fmt.Println("Session: credential present")
	// Display-only peek, never a trust decision.
	if claims, ok := token.PeekClaims(access); ok {
		if claims.Subject != "" {
			fmt.Println("Subject:", claims.Subject)
		}
		if !claims.Expiry.IsZero() {
			fmt.Println("Access expires:", claims.Expiry.Format("2006-01-02 15:04:05 MST"))
		}
	}
	if profile, err := application.Tokens.CachedProfile(ctx); err == nil {
		fmt.Printf("Cached profile: %s <%s>\n", profile.DisplayName, profile.Email)
	}
	return nil
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
