package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/atinyakov/GalleryKeeper/internal/accountkey"
	"github.com/atinyakov/GalleryKeeper/internal/config"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/service"
)

// app carries the collaborators shared by one-shot commands and the shell.
type app struct {
	store  *service.AccountStore
	client *service.SessionClient
	async  *service.AsyncSession

	out          io.Writer
	in           *bufio.Scanner
	readPassword func(prompt string) (string, error)
}

// run dispatches the command selected by o.
func (a *app) run(ctx context.Context, o *config.Options) error {
	switch o.Command {
	case "login":
		if o.Account != "" {
			return a.loginAccount(ctx, o.Account)
		}
		return a.login(ctx, o.SiteURL, o.Username)
	case "status":
		if o.SiteURL != "" && o.Account == "" {
			return a.siteStatus(ctx, o.SiteURL)
		}
		return a.accountStatus(ctx, o.Account)
	case "logout":
		return a.logout(ctx, o.Account)
	case "accounts":
		return a.accounts(ctx)
	case "use":
		return a.use(ctx, o.Account)
	case "remove":
		return a.remove(ctx, o.Account)
	case "shell":
		return a.shell(ctx)
	default:
		return fmt.Errorf("unknown command: %s", o.Command)
	}
}

// login authenticates with explicit credentials. Without a username a guest
// account is added after checking that the gallery answers.
func (a *app) login(ctx context.Context, siteURL, username string) error {
	if siteURL == "" {
		return errors.New("login requires -url")
	}
	if username == "" {
		return a.addGuest(ctx, siteURL)
	}
	password, err := a.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return err
	}

	res, err := a.client.Login(ctx, siteURL, username, password)
	if err != nil {
		return err
	}
	return a.applyLogin(ctx, res)
}

// addGuest stores a guest account for siteURL and makes it active.
func (a *app) addGuest(ctx context.Context, siteURL string) error {
	if _, err := a.client.Status(ctx, siteURL); err != nil {
		return err
	}
	acc, err := a.store.CreateAccount(ctx, siteURL, "", "", "", "")
	if err != nil && !errors.Is(err, models.ErrDuplicateAccount) {
		return err
	}
	key, err := accountkey.Derive(siteURL, "")
	if err != nil {
		return err
	}
	a.store.SetActiveAccount(ctx, key)
	if acc != nil {
		fmt.Fprintf(a.out, "Added guest account %s\n", acc.Key)
	}
	return nil
}

func (a *app) loginAccount(ctx context.Context, key string) error {
	res, err := a.client.LoginAccount(ctx, key)
	if err != nil {
		return err
	}
	return a.applyLogin(ctx, res)
}

func (a *app) applyLogin(ctx context.Context, res *models.LoginResult) error {
	acc, err := service.ApplyLogin(ctx, a.store, res)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", acc.Key, statusLine(res.Status))
	return nil
}

func (a *app) siteStatus(ctx context.Context, siteURL string) error {
	res, err := a.client.Status(ctx, siteURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", res.URL, statusLine(res.Status))
	return nil
}

func (a *app) accountStatus(ctx context.Context, key string) error {
	key, err := a.resolve(key)
	if err != nil {
		return err
	}
	res, err := a.client.StatusAccount(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", key, statusLine(res.Status))
	return nil
}

// logout ends the session on the server and then forgets it locally.
func (a *app) logout(ctx context.Context, key string) error {
	key, err := a.resolve(key)
	if err != nil {
		return err
	}
	res, err := a.client.Logout(ctx, key)
	if err != nil {
		return err
	}
	return a.forgetSession(ctx, key, res)
}

func (a *app) accounts(ctx context.Context) error {
	accs, err := a.store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accs) == 0 {
		fmt.Fprintln(a.out, "No accounts")
		return nil
	}

	active := ""
	if cur := a.store.Current(); cur != nil {
		active = cur.Key
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, acc := range accs {
		marker := " "
		if acc.Key == active {
			marker = "*"
		}
		state := "logged out"
		if acc.SessionCookie != "" {
			state = "session"
		}
		if acc.IsGuest {
			state = "guest"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, acc.Key, acc.SiteURL, state)
	}
	return tw.Flush()
}

func (a *app) use(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("use requires an account key")
	}
	a.store.SetActiveAccount(ctx, key)
	cur := a.store.Current()
	if cur == nil {
		fmt.Fprintln(a.out, "No active account")
		return nil
	}
	if cur.Key != key {
		fmt.Fprintf(a.out, "Unknown account %s, active account is %s\n", key, cur.Key)
		return nil
	}
	fmt.Fprintf(a.out, "Active account: %s\n", cur.Key)
	return nil
}

func (a *app) remove(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("remove requires an account key")
	}
	if err := a.store.RemoveAccount(ctx, key); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %s\n", key)
	return nil
}

// resolve defaults an empty key to the active account.
func (a *app) resolve(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	if cur := a.store.Current(); cur != nil {
		return cur.Key, nil
	}
	return "", errors.New("no account given and no active account")
}

func statusLine(s *models.Status) string {
	if s == nil {
		return "no status"
	}
	return fmt.Sprintf("user %s, status %s, version %s", s.Username, s.Status, s.Version)
}

// describe turns core errors into user-facing messages.
func describe(err error) string {
	var authErr *models.AuthenticationError
	var protoErr *models.ProtocolError
	switch {
	case errors.As(err, &authErr):
		return fmt.Sprintf("Login rejected (%d): %s", authErr.Code, authErr.Message)
	case errors.As(err, &protoErr):
		return fmt.Sprintf("Unexpected server response: %v", protoErr)
	case errors.Is(err, models.ErrInvalidURL):
		return fmt.Sprintf("Invalid gallery URL: %v", err)
	case errors.Is(err, models.ErrUnknownAccount):
		return fmt.Sprintf("Unknown account: %v", err)
	case errors.Is(err, models.ErrDuplicateAccount):
		return fmt.Sprintf("Account exists: %v", err)
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	default:
		return err.Error()
	}
}
