package telegram

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/session"
	tdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"tg-scraper/pkg/utils"
)

// Dial builds the MTProto client with a file-backed session and flood-wait
// handling. The client only connects once Run is called on it.
func Dial(creds Credentials, sessionFile string) (*tdclient.Client, error) {
	if dir := filepath.Dir(sessionFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: creating session directory '%s': %w", utils.ErrFilesystem, dir, err)
		}
	}
	return tdclient.NewClient(creds.APIID, creds.APIHash, tdclient.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
		Middlewares:    []tdclient.Middleware{floodwait.NewSimpleWaiter()},
	}), nil
}

// EnsureAuth signs the session in if it is not already authorized,
// prompting on the terminal for whatever the flow needs.
func EnsureAuth(ctx context.Context, client *tdclient.Client, creds Credentials) error {
	flow := auth.NewFlow(terminalPrompt{phone: creds.Phone}, auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("%w: authorization failed: %w", utils.ErrCredentials, err)
	}
	return nil
}

// Login runs the authorization flow explicitly and reports the signed-in
// account. Already-authorized sessions short-circuit with a notice.
func Login(ctx context.Context, client *tdclient.Client, creds Credentials, log *logrus.Logger) error {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("checking authorization status: %w", err)
	}
	if status.Authorized {
		log.Infof("Session already authorized as %s", userLabel(status.User))
		return nil
	}

	if err := EnsureAuth(ctx, client, creds); err != nil {
		return err
	}
	self, err := client.Self(ctx)
	if err != nil {
		return fmt.Errorf("fetching own user after login: %w", err)
	}
	log.Infof("Signed in as %s", userLabel(self))
	return nil
}

func userLabel(u *tg.User) string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// terminalPrompt supplies login input interactively: the phone from the
// credentials, the login code from stdin, the 2FA password without echo.
type terminalPrompt struct {
	phone string
}

func (p terminalPrompt) Phone(_ context.Context) (string, error) {
	return p.phone, nil
}

func (p terminalPrompt) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Login code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func (p terminalPrompt) Password(_ context.Context) (string, error) {
	fmt.Print("2FA password: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	pw, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(pw), nil
}

func (p terminalPrompt) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (p terminalPrompt) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("%w: the phone is not registered, sign up with an official client first", utils.ErrCredentials)
}
