package llm

import (
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// azureADTransport authenticates each request with a bearer token for the
// Cognitive Services scope, replacing any api-key header.
type azureADTransport struct {
	cred azcore.TokenCredential
	base http.RoundTripper
}

// newAzureADTransport uses the default credential chain when cred is nil.
func newAzureADTransport(cred azcore.TokenCredential) (*azureADTransport, error) {
	if cred == nil {
		c, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure ad credential: %w", err)
		}
		cred = c
	}
	return &azureADTransport{cred: cred, base: http.DefaultTransport}, nil
}

func (t *azureADTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.cred.GetToken(req.Context(), policy.TokenRequestOptions{Scopes: []string{AzureADScope}})
	if err != nil {
		return nil, fmt.Errorf("azure ad token: %w", err)
	}
	r := req.Clone(req.Context())
	r.Header.Del("api-key")
	r.Header.Set("Authorization", "Bearer "+tok.Token)
	return t.base.RoundTrip(r)
}
