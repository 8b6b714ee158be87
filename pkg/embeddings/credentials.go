package embeddings

import (
	"os"
	"strings"
)

// CredentialLookup resolves an environment-style credential by name.
type CredentialLookup func(name string) (string, bool)

// EnvLookup reads credentials from the process environment.
func EnvLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// providerCredentials lists the credentials each provider requires. A
// provider with no entries is always available.
var providerCredentials = map[string][]string{
	ProviderOllama:  nil,
	ProviderOpenAI:  {"OPENAI_API_KEY"},
	ProviderMistral: {"MISTRAL_API_KEY"},
	ProviderGoogle:  {"GOOGLE_GENERATIVE_AI_API_KEY"},
	ProviderBedrock: {"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"},
}

// providerOptional lists settings passed through to the provider when set.
// They never affect availability.
var providerOptional = map[string][]string{
	ProviderBedrock: {"AWS_SESSION_TOKEN", "AWS_REGION"},
}

// RequiredCredentials returns the credential names for a provider, and false
// for unknown providers.
func RequiredCredentials(providerID string) ([]string, bool) {
	names, ok := providerCredentials[providerID]
	return names, ok
}

// OptionalCredentials returns the settings passed through to a provider when
// set.
func OptionalCredentials(providerID string) []string {
	return providerOptional[providerID]
}

// IsConfigured reports whether every credential the provider requires is
// present and non-blank.
func IsConfigured(providerID string, lookup CredentialLookup) bool {
	names, ok := providerCredentials[providerID]
	if !ok {
		return false
	}
	if lookup == nil {
		lookup = EnvLookup
	}

	for _, name := range names {
		v, found := lookup(name)
		if !found || strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Credentials is the resolved set of credential values for one provider.
type Credentials map[string]string

func resolveCredentials(providerID string, lookup CredentialLookup) Credentials {
	names := providerCredentials[providerID]
	creds := make(Credentials, len(names))
	for _, name := range names {
		v, _ := lookup(name)
		creds[name] = strings.TrimSpace(v)
	}
	for _, name := range providerOptional[providerID] {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			creds[name] = strings.TrimSpace(v)
		}
	}
	return creds
}
