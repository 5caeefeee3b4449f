package anchor

// SignerRole names one of the two custodial keys. The roles hold distinct
// keys with distinct responsibilities: RoleContract signs contract and
// document actions, RolePayments signs payment and yield actions.
type SignerRole string

const (
	RoleContract SignerRole = "contract"
	RolePayments SignerRole = "payments"
)

// Credential is an opaque handle to a custodial signing key held by the
// node on behalf of a party without its own wallet. Key-material security
// beyond this handle is out of scope.
type Credential struct {
	Address    string
	Passphrase string
}

// SecretsProvider resolves custodial signing credentials by role.
type SecretsProvider interface {
	Resolve(role SignerRole) (Credential, error)
}

// StaticSecrets is a SecretsProvider backed by preloaded credentials,
// typically populated from configuration with env expansion.
type StaticSecrets map[SignerRole]Credential

func (s StaticSecrets) Resolve(role SignerRole) (Credential, error) {
	cred, ok := s[role]
	if !ok || cred.Address == "" {
		return Credential{}, &ConfigurationError{Role: role, Message: "no signing credential configured"}
	}
	return cred, nil
}
