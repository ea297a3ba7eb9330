package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/atinyakov/keeperbridge/internal/bridge"
	"github.com/atinyakov/keeperbridge/internal/config"
	"github.com/atinyakov/keeperbridge/internal/gateway"
	"github.com/atinyakov/keeperbridge/internal/logger"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/popup"
	"github.com/atinyakov/keeperbridge/internal/webapp"
)

// webStorageFile holds the web application's local storage next to the
// session file.
const webStorageFile = "webapp-local.json"

const webHelp = "Available commands: help, login, me, list, get <id>, add, delete <id>, logout, exit"

// web runs the web application shell. Logins made here are announced on an
// in-process bus and relayed to the broker over the bridge channel.
func web(ctx context.Context, options *config.Options, bridgeChannel bridge.Sender, log *logger.Logger, in io.Reader, out io.Writer) error {
	local, err := webapp.NewLocalStorage(filepath.Join(filepath.Dir(options.StoreFile), webStorageFile))
	if err != nil {
		return err
	}

	origin := options.WebLoginURL
	if len(options.TrustedOrigins) > 0 {
		origin = options.TrustedOrigins[0]
	}
	bus := bridge.NewBus(origin)
	win := bridge.NewWindow(origin)
	relay := bridge.NewRelay(win, options.TrustedOrigins, bridgeChannel, log.Named("bridge"))
	sub := relay.Attach(bus)
	defer sub.Close()

	scope, err := gateway.NewScope(options.SensitiveScopes...)
	if err != nil {
		return err
	}
	app := webapp.New(webapp.Options{
		BackendURL: options.BackendURL,
		Local:      local,
		Session:    webapp.NewSessionStorage(),
		Announcer:  bridge.NewAnnouncer(bus, win),
		Navigate: func(path string) {
			fmt.Fprintf(out, "Session expired. Redirecting to %s\n", path)
		},
		Scope: scope,
		Log:   log.Named("webapp"),
	})

	return repl(ctx, app, in, out)
}

// repl reads commands line by line until exit or end of input.
func repl(ctx context.Context, app *webapp.App, in io.Reader, out io.Writer) error {
	prompter := popup.NewPrompter(in, out)

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := prompter.Line("vault> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Fprintln(out, webHelp)
		case "login":
			webLogin(ctx, app, prompter, out)
		case "me":
			user, err := app.Auth.Refresh(ctx)
			switch {
			case err != nil:
				fmt.Fprintln(out, err)
			case user == nil:
				fmt.Fprintln(out, "Not logged in")
			default:
				fmt.Fprintf(out, "%s <%s>\n", user.Username, user.Email)
			}
		case "list":
			entries, err := app.Vault.Fetch(ctx)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s\n", e.ID, e.Title)
			}
		case "get":
			if len(args) < 2 {
				fmt.Fprintln(out, "Usage: get <id>")
				continue
			}
			e, err := app.Vault.Get(ctx, args[1])
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			b, _ := json.MarshalIndent(e, "", "  ")
			fmt.Fprintln(out, string(b))
		case "add":
			entryIn, err := askEntry(prompter)
			if err != nil {
				return nil
			}
			if _, err := app.Vault.Add(ctx, entryIn); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			fmt.Fprintln(out, "Entry added")
		case "delete":
			if len(args) < 2 {
				fmt.Fprintln(out, "Usage: delete <id>")
				continue
			}
			if err := app.Vault.Delete(ctx, args[1]); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			fmt.Fprintln(out, "Entry deleted")
		case "logout":
			if err := app.Auth.Logout(ctx); err != nil {
				fmt.Fprintln(out, err)
			}
			fmt.Fprintln(out, "Logged out")
		case "exit":
			fmt.Fprintln(out, "Bye")
			return nil
		default:
			fmt.Fprintln(out, "Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// webLogin signs in, asking for a one-time code when the account has MFA.
func webLogin(ctx context.Context, app *webapp.App, prompter *popup.Prompter, out io.Writer) {
	email, password, err := prompter.Credentials()
	if err != nil {
		return
	}
	resp, err := app.Auth.Login(ctx, email, password, nil)
	if errors.Is(err, gateway.ErrMFARequired) {
		code, perr := prompter.Ask("MFA code", "")
		if perr != nil {
			return
		}
		resp, err = app.Auth.Login(ctx, email, password, &code)
	}
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	name := "user"
	if resp.User != nil {
		name = resp.User.Username
	}
	fmt.Fprintf(out, "Logged in as %s\n", name)
}

func askEntry(p *popup.Prompter) (models.VaultEntryInput, error) {
	var in models.VaultEntryInput
	var err error
	if in.Title, err = p.Ask("Title", ""); err != nil {
		return in, err
	}
	if in.URL, err = p.Ask("URL", ""); err != nil {
		return in, err
	}
	if in.Username, err = p.Ask("Username", ""); err != nil {
		return in, err
	}
	if in.Password, err = p.Ask("Password", ""); err != nil {
		return in, err
	}
	return in, nil
}
