package definition

import (
	"net"
	"testing"
)

var remoteAddr = &net.TCPAddr{IP: []byte{127, 0, 0, 1}, Port: 40000}

func TestPassphraseAuthenticator(t *testing.T) {
	store := NewMemoryCredentialStore()
	if err := store.Put("user", []byte("right"), "operator"); err != nil {
		t.Fatalf("failed storing credential. %v", err)
	}
	auth := NewPassphraseAuthenticator(store)

	if err := auth.Authenticate(remoteAddr, "user", []byte("right")); err != nil {
		t.Fatalf("expected the right passphrase to pass. %v", err)
	}
	if err := auth.Authenticate(remoteAddr, "user", []byte("wrong")); err == nil {
		t.Fatal("expected the wrong passphrase to fail")
	}
	if err := auth.Authenticate(remoteAddr, "ghost", []byte("right")); err == nil {
		t.Fatal("expected the unknown identity to fail")
	}
}

func TestRuleAuthorizer_Precedence(t *testing.T) {
	authorizer := NewRuleAuthorizer(false)
	authorizer.BindRoles("alice", "operator")
	authorizer.BindRoles("bob", "operator")

	authorizer.AllowRole("operator", RuleObject("svc"))
	authorizer.DenyRole("operator", RuleObjectMethod("secrets", "read"))
	authorizer.AllowUser("alice", RuleObjectMethod("secrets", "read"))

	if !authorizer.Authorize("bob", "svc", "service", "status") {
		t.Fatal("role allow should pass")
	}
	if authorizer.Authorize("bob", "secrets", "vault", "read") {
		t.Fatal("role deny should hold when nothing allows")
	}
	if authorizer.Authorize("bob", "secrets", "vault", "list") {
		t.Fatal("expected the default to deny")
	}
	if !authorizer.Authorize("alice", "secrets", "vault", "read") {
		t.Fatal("user allow should override the role deny")
	}

	// Role allow and role deny on the same granularity: the
	// positive wins.
	authorizer.DenyRole("operator", RuleObject("svc"))
	if !authorizer.Authorize("bob", "svc", "service", "status") {
		t.Fatal("role allow should win over role deny")
	}

	// User denies beat role allows.
	authorizer.DenyUser("bob", RuleClass("service"))
	if authorizer.Authorize("bob", "svc", "service", "status") {
		t.Fatal("user deny should win over role allow")
	}

	open := NewRuleAuthorizer(true)
	if !open.Authorize("carol", "other", "thing", "status") {
		t.Fatal("expected the default to allow")
	}
}
