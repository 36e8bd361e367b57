package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Scopes requested by the auth flow and on token refresh.
var Scopes = []string{
	"https://graph.microsoft.com/Calendars.ReadWrite",
	"https://graph.microsoft.com/User.Read",
	"offline_access",
}

// tokenCredential bridges our saved OAuth2 token into the Azure SDK's
// TokenCredential interface, allowing the Microsoft Graph SDK to
// authenticate requests.
type tokenCredential struct {
	adapter *OutlookAdapter
}

func (c *tokenCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, expiry, err := c.adapter.accessToken(ctx)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: tok, ExpiresOn: expiry}, nil
}

// OutlookAdapter is an event store backed by an Outlook / Office 365
// calendar through the Microsoft Graph SDK.
type OutlookAdapter struct {
	id         string
	name       string
	clientID   string
	tenantID   string
	tokenFile  string
	calendarID string

	token   *oauth2.Token
	tokenMu sync.Mutex
	client  *msgraphsdk.GraphServiceClient
}

// NewOutlookAdapter builds a store. An empty calendarID means the default calendar.
func NewOutlookAdapter(id, name, clientID, tenantID, tokenFile, calendarID string) *OutlookAdapter {
	if tenantID == "" {
		tenantID = "common"
	}
	return &OutlookAdapter{
		id:         id,
		name:       name,
		clientID:   clientID,
		tenantID:   tenantID,
		tokenFile:  tokenFile,
		calendarID: calendarID,
	}
}

func (o *OutlookAdapter) ID() string   { return o.id }
func (o *OutlookAdapter) Name() string { return o.name }

// OAuthConfig returns the OAuth2 configuration for Microsoft identity platform.
// Used by the auth command to run the initial OAuth flow.
func (o *OutlookAdapter) OAuthConfig() *oauth2.Config {
	return OAuthConfig(o.clientID, o.tenantID)
}

// OAuthConfig returns the Microsoft identity platform config for clientID.
func OAuthConfig(clientID, tenantID string) *oauth2.Config {
	if tenantID == "" {
		tenantID = "common"
	}
	return &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    microsoft.AzureADEndpoint(tenantID),
		RedirectURL: "http://localhost:8085/callback",
		Scopes:      Scopes,
	}
}

// Login loads the saved OAuth token and initializes the Graph SDK client.
func (o *OutlookAdapter) Login(ctx context.Context) error {
	tok, err := tokenFromFile(o.tokenFile)
	if err != nil {
		return fmt.Errorf("read token file (run 'crmcal auth' first): %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token file has no access token, delete %s and run 'crmcal auth' again", o.tokenFile)
	}
	o.token = tok

	cred := &tokenCredential{adapter: o}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{
		"https://graph.microsoft.com/.default",
	})
	if err != nil {
		return fmt.Errorf("create graph client: %w", err)
	}
	o.client = client
	return nil
}

// accessToken returns a valid access token and its expiry, refreshing if expired.
func (o *OutlookAdapter) accessToken(ctx context.Context) (string, time.Time, error) {
	o.tokenMu.Lock()
	defer o.tokenMu.Unlock()

	if o.token.Valid() {
		return o.token.AccessToken, o.token.Expiry, nil
	}

	// Token expired, refresh it
	src := o.OAuthConfig().TokenSource(ctx, o.token)
	newTok, err := src.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token expired and refresh failed (delete %s and run 'crmcal auth'): %w", o.tokenFile, err)
	}
	o.token = newTok

	// Persist the refreshed token
	if f, err := os.Create(o.tokenFile); err == nil {
		_ = json.NewEncoder(f).Encode(newTok)
		f.Close()
	}

	return newTok.AccessToken, newTok.Expiry, nil
}

// Calendars returns all available calendars (ID -> Name).
func (o *OutlookAdapter) Calendars(ctx context.Context) (map[string]string, error) {
	result, err := o.client.Me().Calendars().Get(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	out := make(map[string]string)
	for _, cal := range result.GetValue() {
		id := cal.GetId()
		name := cal.GetName()
		if id != nil && name != nil {
			out[*id] = *name
		}
	}
	return out, nil
}
