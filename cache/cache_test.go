package cache

import (
	"testing"

	"github.com/opentelco/tokenbroker/oauth"
)

func TestKeyFormat(t *testing.T) {
	id, err := oauth.NewTelecomIdentifier("972", "050123")
	if err != nil {
		t.Fatalf("NewTelecomIdentifier: %v", err)
	}
	if got, want := Key(KeyBrokerToken, id), "broker_token_972_050123"; got != want {
		t.Errorf("broker key = %q, want %q", got, want)
	}
	if got, want := Key(KeyTelecomToken, id), "telecom_token_972_050123"; got != want {
		t.Errorf("telecom key = %q, want %q", got, want)
	}
}
