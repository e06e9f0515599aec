package definition

import (
	"net"
	"sync"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"golang.org/x/crypto/bcrypt"
)

// MemoryCredentialStore is the in-memory default of the credential
// store contract.
type MemoryCredentialStore struct {
	mutex   sync.RWMutex
	entries map[string]types.CredentialEntry
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{entries: make(map[string]types.CredentialEntry)}
}

// MemoryCredentialStore implements types.CredentialStore.
func (m *MemoryCredentialStore) Set(entry types.CredentialEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[entry.AuthID] = entry
	return nil
}

// MemoryCredentialStore implements types.CredentialStore.
func (m *MemoryCredentialStore) Get() ([]types.CredentialEntry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]types.CredentialEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry)
	}
	return out, nil
}

// Put hashes the passphrase and stores the identity.
func (m *MemoryCredentialStore) Put(authID string, passphrase []byte, roles ...string) error {
	hash, err := bcrypt.GenerateFromPassword(passphrase, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return m.Set(types.CredentialEntry{AuthID: authID, PassphraseHash: hash, Roles: roles})
}

// PassphraseAuthenticator validates handshake credentials against a
// credential store of bcrypt hashes.
type PassphraseAuthenticator struct {
	Store types.CredentialStore
}

func NewPassphraseAuthenticator(store types.CredentialStore) *PassphraseAuthenticator {
	return &PassphraseAuthenticator{Store: store}
}

// PassphraseAuthenticator implements types.Authenticator.
func (a *PassphraseAuthenticator) Authenticate(remote net.Addr, authID string, credential []byte) error {
	entries, err := a.Store.Get()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.AuthID != authID {
			continue
		}
		if err := bcrypt.CompareHashAndPassword(entry.PassphraseHash, credential); err != nil {
			return types.NewRemoteError(types.KindAuthentication, "wrong passphrase for %q", authID)
		}
		return nil
	}
	return types.NewRemoteError(types.KindAuthentication, "unknown identity %q", authID)
}

// Rule granularities of the reference authorizer. Rules exist on two
// levels, user and role, each with positive and negative sets;
// resolution order is user-allow, user-deny, role-allow, role-deny,
// then the process default.
const (
	classRulePrefix = "class:"
)

// RuleObjectMethod scopes a rule to one method of one object.
func RuleObjectMethod(objectID, method string) string {
	return objectID + "#" + method
}

// RuleMethod scopes a rule to a method name on any object.
func RuleMethod(method string) string {
	return "#" + method
}

// RuleObject scopes a rule to every method of one object.
func RuleObject(objectID string) string {
	return objectID
}

// RuleClass scopes a rule to every object of a concrete type.
func RuleClass(className string) string {
	return classRulePrefix + className
}

type ruleSet map[string]map[string]struct{}

func (r ruleSet) add(principal, rule string) {
	if r[principal] == nil {
		r[principal] = make(map[string]struct{})
	}
	r[principal][rule] = struct{}{}
}

func (r ruleSet) matches(principal string, keys []string) bool {
	rules := r[principal]
	if rules == nil {
		return false
	}
	for _, key := range keys {
		if _, ok := rules[key]; ok {
			return true
		}
	}
	return false
}

// RuleAuthorizer is the reference per-invocation authorizer.
type RuleAuthorizer struct {
	mutex sync.RWMutex

	roles map[string][]string

	userAllow ruleSet
	userDeny  ruleSet
	roleAllow ruleSet
	roleDeny  ruleSet

	fallback bool
}

func NewRuleAuthorizer(fallback bool) *RuleAuthorizer {
	return &RuleAuthorizer{
		roles:     make(map[string][]string),
		userAllow: make(ruleSet),
		userDeny:  make(ruleSet),
		roleAllow: make(ruleSet),
		roleDeny:  make(ruleSet),
		fallback:  fallback,
	}
}

// BindRoles assigns roles to an identity.
func (r *RuleAuthorizer) BindRoles(authID string, roles ...string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.roles[authID] = append(r.roles[authID], roles...)
}

func (r *RuleAuthorizer) AllowUser(authID, rule string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.userAllow.add(authID, rule)
}

func (r *RuleAuthorizer) DenyUser(authID, rule string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.userDeny.add(authID, rule)
}

func (r *RuleAuthorizer) AllowRole(role, rule string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.roleAllow.add(role, rule)
}

func (r *RuleAuthorizer) DenyRole(role, rule string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.roleDeny.add(role, rule)
}

// RuleAuthorizer implements types.Authorizer.
func (r *RuleAuthorizer) Authorize(authID, objectID, className, method string) bool {
	keys := []string{
		RuleObjectMethod(objectID, method),
		RuleMethod(method),
		RuleObject(objectID),
		RuleClass(className),
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.userAllow.matches(authID, keys) {
		return true
	}
	if r.userDeny.matches(authID, keys) {
		return false
	}
	allowed, denied := false, false
	for _, role := range r.roles[authID] {
		allowed = allowed || r.roleAllow.matches(role, keys)
		denied = denied || r.roleDeny.matches(role, keys)
	}
	if allowed {
		return true
	}
	if denied {
		return false
	}
	return r.fallback
}
