package model

// Pack is a LootBox token held by an account.
type Pack struct {
	TokenID  string `json:"token_id"`
	TokenURI string `json:"token_uri,omitempty"`
}
