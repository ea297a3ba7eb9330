// Package main generates the channel CA, the broker certificate and one
// client certificate per calling context, writing them under a directory
// ("certs" by default).
//
// With -add, an existing CA is loaded from the directory and only the named
// context certificate is issued.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/keeperbridge/internal/certgen"
)

func main() {
	var (
		dir      string
		host     string
		contexts string
		add      string
	)
	flag.StringVar(&dir, "dir", "certs", "output directory")
	flag.StringVar(&host, "host", certgen.ContextBroker, "broker host name")
	flag.StringVar(&contexts, "contexts", strings.Join(certgen.DefaultContexts, ","), "comma separated context names")
	flag.StringVar(&add, "add", "", "issue one more context certificate with the existing CA")
	flag.Parse()

	var err error
	if add != "" {
		err = addContext(dir, add)
	} else {
		err = generateAll(dir, host, splitList(contexts))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Certificates generated into ./%s\n", dir)
}

// generateAll creates a fresh CA, the broker certificate for host (written
// as server.crt/server.key) and one pair per context.
func generateAll(dir, host string, contexts []string) error {
	caCert, caKey, caPEM, caKeyPEM, err := certgen.GenerateCA("KeeperBridge CA")
	if err != nil {
		return err
	}
	if err := certgen.WritePair(dir, "ca", caPEM, caKeyPEM); err != nil {
		return err
	}

	certPEM, keyPEM, err := certgen.GenerateServerCertificate(host, caCert, caKey)
	if err != nil {
		return err
	}
	if err := certgen.WritePair(dir, "server", certPEM, keyPEM); err != nil {
		return err
	}

	for _, name := range contexts {
		certPEM, keyPEM, err := certgen.GenerateContextCertificate(name, caCert, caKey)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := certgen.WritePair(dir, name, certPEM, keyPEM); err != nil {
			return err
		}
	}
	return nil
}

// addContext issues a single context certificate with the CA found in dir.
func addContext(dir, name string) error {
	caCert, caKey, err := certgen.LoadCACredentials(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	if err != nil {
		return err
	}
	certPEM, keyPEM, err := certgen.GenerateContextCertificate(name, caCert, caKey)
	if err != nil {
		return err
	}
	return certgen.WritePair(dir, name, certPEM, keyPEM)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
