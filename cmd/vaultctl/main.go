// Package main is the control panel command line: it shows the broker's
// session, signs in and out through it, follows session changes, and hosts
// the web application shell that hands its logins to the broker.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/atinyakov/keeperbridge/internal/certgen"
	"github.com/atinyakov/keeperbridge/internal/client"
	"github.com/atinyakov/keeperbridge/internal/config"
	"github.com/atinyakov/keeperbridge/internal/logger"
	"github.com/atinyakov/keeperbridge/internal/popup"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

const usage = `usage: vaultctl [flags] <command>

commands:
  status   show the broker session and the current page
  login    sign in through the broker
  logout   clear the broker session
  watch    follow session changes
  web      open the web application shell
  version  show build version and date`

func main() {
	options := config.Parse()

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, log, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, options *config.Options, log *logger.Logger, in io.Reader, out io.Writer) error {
	if len(options.Args) == 0 {
		fmt.Fprintln(out, usage)
		return nil
	}
	cmd, args := options.Args[0], options.Args[1:]

	if cmd == "version" {
		fmt.Fprintf(out, "vaultctl\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return nil
	}

	if cmd == "web" {
		bridgeHTTP, err := channelClient(options.CertDir, certgen.ContextBridge)
		if err != nil {
			return err
		}
		return web(ctx, options, client.NewChannel(options.BrokerURL, bridgeHTTP), log, in, out)
	}

	hc, err := channelClient(options.CertDir, cmp.Or(options.Context, certgen.ContextControlPanel))
	if err != nil {
		return err
	}
	panel := popup.New(
		client.NewChannel(options.BrokerURL, hc),
		out,
		options.WebLoginURL,
		popup.WithAgent(client.NewChannel("https://"+options.AgentAddr, hc)),
		popup.WithOpener(openURL),
	)

	switch cmd {
	case "status":
		_, err := panel.Status(ctx)
		return err
	case "login":
		prompter := popup.NewPrompter(in, out)
		var email string
		if len(args) > 0 {
			email = args[0]
		} else if email, err = prompter.Ask("Email", ""); err != nil {
			return err
		}
		password, err := prompter.Ask("Master password", "")
		if err != nil {
			return err
		}
		return panel.Login(ctx, email, password)
	case "logout":
		return panel.Logout(ctx)
	case "watch":
		err := panel.Watch(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown command: %s\n\n%s", cmd, usage)
	}
}

// channelClient loads the named context's certificate pair.
func channelClient(dir, name string) (*http.Client, error) {
	certFile, keyFile, caFile := client.CertPaths(dir, name)
	return client.LoadClientCertificate(certFile, keyFile, caFile)
}

// openURL hands url to the desktop's default browser.
func openURL(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	return c.Start()
}
