// simfocus is a terminal shell over the SimFocus client SDK.  It keeps a
// session in a credential file under the user's home directory and drives
// the same auth lifecycle the web client does: local login, Keycloak login
// in either mode, profile fetch and update, token refresh, and logout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/credstore"
	"github.com/plf1996/simfocus-go/keycloak"
	"github.com/plf1996/simfocus-go/session"
)

var (
	envFile   string
	credsFile string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "simfocus",
	Short:         "SimFocus client session CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&credsFile, "credentials", "", "credential file (default $HOME/.simfocus/credentials.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(logoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is the wired-up client: config, credential file, API client, Keycloak
// adapter (when enabled), and the session store over all of them.
type app struct {
	cfg     *keycloak.Config
	creds   credstore.Store
	client  *api.Client
	adapter keycloak.Service
	store   *session.Store
	logger  hclog.Logger
}

func newApp() (*app, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("unable to load %s: %w", envFile, err)
		}
	}

	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "simfocus", Level: level})

	cfg, err := keycloak.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	path := credsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("unable to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".simfocus", "credentials.json")
	}
	creds, err := credstore.NewFileStore(path)
	if err != nil {
		return nil, err
	}

	// the browser would navigate; a terminal prints the destination
	navigator := api.NavigatorFunc(func(url string) {
		fmt.Println("Open in your browser:")
		fmt.Println("  " + url)
	})

	clientOpts := []api.Option{api.WithLogger(logger.Named("api"))}
	if cfg.ProviderCA != "" {
		clientOpts = append(clientOpts, api.WithProviderCA(cfg.ProviderCA))
	}
	client, err := api.NewClient(cfg.APIBaseURL, creds, navigator, clientOpts...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, creds: creds, client: client, logger: logger}

	storeOpts := []session.Option{session.WithLogger(logger.Named("session"))}
	if cfg.Enabled {
		adapter, err := keycloak.NewService(cfg, creds,
			keycloak.WithLogger(logger.Named("keycloak")),
			keycloak.WithNavigator(navigator),
		)
		if err != nil {
			return nil, err
		}
		a.adapter = adapter
		storeOpts = append(storeOpts, session.WithKeycloak(adapter))
	}

	store, err := session.NewStore(client, creds, storeOpts...)
	if err != nil {
		return nil, err
	}
	a.store = store
	return a, nil
}

func (a *app) close() {
	if a.adapter != nil {
		a.adapter.Done()
	}
}

// prompt reads one line from stdin.
func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printProfile(profile api.Profile) error {
	out, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
