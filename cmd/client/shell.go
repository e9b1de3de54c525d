package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/worker"
)

const shellHelp = `Available commands:
  accounts                 list stored accounts (* marks the active one)
  use <key>                make an account active
  login <url> [user]       log in, as guest without user
  relogin [key]            log in again with stored credentials
  status [key]             session status of an account
  check <url>              anonymous status of a gallery
  logout [key]             end the session of an account
  remove <key>             delete an account
  help, exit`

// shell runs the interactive loop. Network calls go through the async
// session; the active account is reported whenever it changes.
func (a *app) shell(ctx context.Context) error {
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	updates := a.store.ActiveAccount().Watch(watchCtx)
	go func() {
		for acc := range updates {
			if acc == nil {
				fmt.Fprintln(a.out, "[no active account]")
			} else {
				fmt.Fprintf(a.out, "[active account: %s]\n", acc.Key)
			}
		}
	}()

	for {
		fmt.Fprint(a.out, "gallery> ")
		if !a.in.Scan() {
			return a.in.Err()
		}
		args := strings.Fields(a.in.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			fmt.Fprintln(a.out, "Bye")
			return nil
		}
		if err := a.shellCommand(ctx, args); err != nil {
			fmt.Fprintln(a.out, describe(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *app) shellCommand(ctx context.Context, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch args[0] {
	case "help":
		fmt.Fprintln(a.out, shellHelp)
		return nil
	case "accounts":
		return a.accounts(ctx)
	case "use":
		return a.use(ctx, arg(1))
	case "remove":
		return a.remove(ctx, arg(1))

	case "login":
		if arg(1) == "" {
			return fmt.Errorf("usage: login <url> [user]")
		}
		if arg(2) == "" {
			return a.addGuest(ctx, arg(1))
		}
		password, err := a.readPassword(fmt.Sprintf("Password for %s: ", arg(2)))
		if err != nil {
			return err
		}
		res, err := await(ctx, func(cb func(*models.LoginResult, error)) worker.CancelFunc {
			return a.async.LoginAsync(ctx, arg(1), arg(2), password, cb)
		})
		if err != nil {
			return err
		}
		return a.applyLogin(ctx, res)

	case "relogin":
		key, err := a.resolve(arg(1))
		if err != nil {
			return err
		}
		res, err := await(ctx, func(cb func(*models.LoginResult, error)) worker.CancelFunc {
			return a.async.LoginAccountAsync(ctx, key, cb)
		})
		if err != nil {
			return err
		}
		return a.applyLogin(ctx, res)

	case "status":
		key, err := a.resolve(arg(1))
		if err != nil {
			return err
		}
		res, err := await(ctx, func(cb func(*models.StatusResult, error)) worker.CancelFunc {
			return a.async.StatusAccountAsync(ctx, key, cb)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %s\n", key, statusLine(res.Status))
		return nil

	case "check":
		if arg(1) == "" {
			return fmt.Errorf("usage: check <url>")
		}
		res, err := await(ctx, func(cb func(*models.StatusResult, error)) worker.CancelFunc {
			return a.async.StatusAsync(ctx, arg(1), cb)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %s\n", res.URL, statusLine(res.Status))
		return nil

	case "logout":
		key, err := a.resolve(arg(1))
		if err != nil {
			return err
		}
		res, err := await(ctx, func(cb func(*models.LogoutResult, error)) worker.CancelFunc {
			return a.async.LogoutAsync(ctx, key, cb)
		})
		if err != nil {
			return err
		}
		return a.forgetSession(ctx, key, res)

	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}
}

// forgetSession clears the stored session after the server was told.
func (a *app) forgetSession(ctx context.Context, key string, res *models.LogoutResult) error {
	if err := a.store.ClearSession(ctx, key); err != nil {
		return err
	}
	if res.ServerAcknowledged {
		fmt.Fprintf(a.out, "Logged out %s\n", key)
	} else {
		fmt.Fprintf(a.out, "Logged out %s (server did not confirm)\n", key)
	}
	return nil
}

// await starts an async call and blocks until its callback ran. When ctx
// ends first the call is cancelled and its final result still awaited.
func await[T any](ctx context.Context, start func(cb func(T, error)) worker.CancelFunc) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	cancel := start(func(v T, err error) { ch <- result{v, err} })

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		cancel()
		r := <-ch
		return r.v, r.err
	}
}
