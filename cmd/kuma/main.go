// Package main is the kuma CLI: a command-line companion to autokuma that
// drives the same Uptime Kuma client library for one-off operations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/autokuma/autokuma/pkg/kuma"
)

type cliFlags struct {
	url            string
	username       string
	password       string
	mfaToken       string
	mfaSecret      string
	authToken      string
	headers        []string
	connectTimeout float64
	callTimeout    float64
	tlsVerify      bool
	tlsCert        string
	format         string
	verbose        bool
}

var flags cliFlags

func main() {
	root := &cobra.Command{
		Use:           "kuma",
		Short:         "Manage an Uptime Kuma instance from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.url, "url", "http://localhost:3001", "base URL of the Uptime Kuma instance")
	pf.StringVar(&flags.username, "username", "", "login username")
	pf.StringVar(&flags.password, "password", "", "login password")
	pf.StringVar(&flags.mfaToken, "mfa-token", "", "single-use 2FA code")
	pf.StringVar(&flags.mfaSecret, "mfa-secret", "", "TOTP secret used to derive 2FA codes")
	pf.StringVar(&flags.authToken, "auth-token", "", "pre-obtained session token")
	pf.StringArrayVar(&flags.headers, "header", nil, "extra HTTP header (key=value, repeatable)")
	pf.Float64Var(&flags.connectTimeout, "connect-timeout", 30, "connect timeout in seconds")
	pf.Float64Var(&flags.callTimeout, "call-timeout", 30, "per-call timeout in seconds")
	pf.BoolVar(&flags.tlsVerify, "tls-verify", true, "verify the server certificate")
	pf.StringVar(&flags.tlsCert, "tls-cert", "", "PEM bundle added to the trusted roots")
	pf.StringVar(&flags.format, "format", "json", "output format: json or yaml")
	pf.BoolVar(&flags.verbose, "verbose", false, "log client activity to stderr")

	root.AddCommand(
		loginCmd(),
		monitorCmd(),
		tagCmd(),
		notificationCmd(),
		dockerHostCmd(),
		statusPageCmd(),
		maintenanceCmd(),
		databaseCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func clientConfig() kuma.Config {
	verify := flags.tlsVerify
	token := flags.authToken
	if token == "" {
		token = loadCachedToken()
	}
	return kuma.Config{
		URL:            flags.url,
		Username:       flags.username,
		Password:       flags.password,
		MFAToken:       flags.mfaToken,
		MFASecret:      flags.mfaSecret,
		AuthToken:      token,
		Headers:        flags.headers,
		ConnectTimeout: time.Duration(flags.connectTimeout * float64(time.Second)),
		CallTimeout:    time.Duration(flags.callTimeout * float64(time.Second)),
		TLS:            kuma.TLSConfig{Verify: &verify, CertPath: flags.tlsCert},
	}
}

// connect opens a session for one command invocation.
func connect(ctx context.Context) (*kuma.Client, error) {
	logger := zap.NewNop()
	if flags.verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}
	return kuma.Connect(ctx, clientConfig(), logger)
}

func tokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "autokuma", "auth_token")
}

func loadCachedToken() string {
	path := tokenPath()
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func storeToken(token string) error {
	path := tokenPath()
	if path == "" || token == "" {
		return fmt.Errorf("no usable token or config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

// emit prints a result in the selected output format.
func emit(v any) error {
	switch flags.format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", flags.format)
	}
}

// readPayload loads an entity definition from a JSON or YAML file, "-" for
// stdin, and decodes it into dst via a JSON round-trip so the models'
// lenient decoding applies.
func readPayload(path string, dst any) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, dst)
}

// run wraps a command body with a connected client and bounded lifetime.
func run(body func(ctx context.Context, client *kuma.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration((flags.connectTimeout+flags.callTimeout*4)*float64(time.Second)))
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	return body(ctx, client)
}

func parseIntArg(arg string) (int, error) {
	var id int
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		return 0, fmt.Errorf("expected a numeric id, got %q", arg)
	}
	return id, nil
}
