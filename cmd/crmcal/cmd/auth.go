package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/theakshaypant/crmcal/internal/adapter/google"
	"github.com/theakshaypant/crmcal/internal/adapter/outlook"
	"github.com/theakshaypant/crmcal/internal/config"
)

const (
	redirectPort = "8085"
	redirectURL  = "http://localhost:" + redirectPort + "/callback"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate a Google or Outlook store",
	Long: `Authenticate a Google Calendar or Outlook store using OAuth.

  1. Starts a local server to receive the OAuth callback
  2. Opens your browser to sign in
  3. Saves the token to the store's token_file

The store is chosen with --store; without it, the first Google or Outlook
store in the config is used.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func authTarget(c config.Config, id string) (config.StoreConfig, error) {
	for _, sc := range c.Stores {
		if sc.Kind != config.KindGoogle && sc.Kind != config.KindOutlook {
			continue
		}
		if id == "" || sc.ID == id {
			return sc, nil
		}
	}
	if id == "" {
		return config.StoreConfig{}, fmt.Errorf("no google or outlook store configured")
	}
	return config.StoreConfig{}, fmt.Errorf("%q is not a configured google or outlook store", id)
}

func runAuth(cmd *cobra.Command, args []string) error {
	var id string
	if cmd.Flags().Changed("store") {
		id, _ = cmd.Flags().GetString("store")
	}
	sc, err := authTarget(cfg, id)
	if err != nil {
		return err
	}

	switch sc.Kind {
	case config.KindGoogle:
		return runGoogleAuth(cmd.Context(), sc)
	default:
		return runOutlookAuth(cmd.Context(), sc)
	}
}

func runGoogleAuth(ctx context.Context, sc config.StoreConfig) error {
	credsFile := expandPath(sc.CredentialsFile)
	tokenFile := expandPath(sc.TokenFile)

	b, err := os.ReadFile(credsFile)
	if err != nil {
		return fmt.Errorf("unable to read credentials file: %w", err)
	}

	oauthCfg, err := googleoauth.ConfigFromJSON(b, google.Scope)
	if err != nil {
		return fmt.Errorf("unable to parse credentials: %w", err)
	}
	oauthCfg.RedirectURL = redirectURL

	tok, err := getTokenViaLocalServer(ctx, oauthCfg, "Google", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	if err := saveToken(tokenFile, tok); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println("\n✅ Authentication successful!")
	fmt.Printf("📁 Token saved to %s\n", tokenFile)
	fmt.Printf("\nYou can now run 'crmcal' to see events from %s.\n", sc.DisplayName())
	return nil
}

func runOutlookAuth(ctx context.Context, sc config.StoreConfig) error {
	if sc.ClientID == "" {
		return fmt.Errorf("client_id not configured for store %s\n\nAdd it to the store config:\n  client_id: \"your-azure-app-client-id\"", sc.ID)
	}
	tokenFile := expandPath(sc.TokenFile)

	oauthCfg := outlook.OAuthConfig(sc.ClientID, sc.TenantID)
	oauthCfg.RedirectURL = redirectURL

	tok, err := getTokenViaLocalServer(ctx, oauthCfg, "Microsoft", oauth2.SetAuthURLParam("prompt", "consent"))
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	if err := saveToken(tokenFile, tok); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println("\n✅ Authentication successful!")
	fmt.Printf("📁 Token saved to %s\n", tokenFile)
	fmt.Printf("\nYou can now run 'crmcal' to see events from %s.\n", sc.DisplayName())
	return nil
}

const authSuccessPage = `<!DOCTYPE html>
<html>
<head>
	<title>Authorization Successful</title>
	<style>
		body { font-family: -apple-system, sans-serif; display: flex;
		       justify-content: center; align-items: center; height: 100vh;
		       margin: 0; background: #1a1a1a; color: #fff; }
		.card { background: #2d2d2d; padding: 40px; border-radius: 12px;
		        box-shadow: 0 2px 10px rgba(0,0,0,0.3); text-align: center; }
		h1 { color: #4ade80; margin-bottom: 10px; }
		p { color: #a1a1aa; }
	</style>
</head>
<body>
	<div class="card">
		<h1>Authorization Successful</h1>
		<p>You can close this window and return to the terminal.</p>
	</div>
</body>
</html>`

// callbackHandler passes the authorization code, or the provider's error, to the waiting flow.
func callbackHandler(codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errMsg := r.URL.Query().Get("error")
			http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
			select {
			case errChan <- fmt.Errorf("authorization failed: %s", errMsg):
			default:
			}
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, authSuccessPage)
		select {
		case codeChan <- code:
		default:
		}
	}
}

func getTokenViaLocalServer(ctx context.Context, oauthCfg *oauth2.Config, providerName string, authOpts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", callbackHandler(codeChan, errChan))
	server := &http.Server{Addr: ":" + redirectPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := oauthCfg.AuthCodeURL("state-token", authOpts...)

	fmt.Printf("🔐 Opening browser for %s authorization...\n", providerName)
	fmt.Println()

	if err := openBrowser(authURL); err != nil {
		fmt.Println("⚠️  Couldn't open browser automatically.")
		fmt.Println("   Please open this URL manually:")
		fmt.Println(authURL)
	}

	fmt.Println("⏳ Waiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("timeout waiting for authorization")
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tok, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
