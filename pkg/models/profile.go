package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AuthMethod selects how a profile authenticates against the remote host.
type AuthMethod string

const (
	// AuthMethodPassword authenticates with a password.
	AuthMethodPassword AuthMethod = "password"
	// AuthMethodPublicKey authenticates with a private key, optionally
	// protected by a passphrase.
	AuthMethodPublicKey AuthMethod = "publicKey"
)

// Valid reports whether the auth method is one of the supported values.
func (m AuthMethod) Valid() bool {
	return m == AuthMethodPassword || m == AuthMethodPublicKey
}

// SSHProfile is a saved connection target owned by a single user.
//
// Credentials are encrypted before they reach this struct and never leave the
// server. Deleting a profile only clears the Active flag so that session
// history keeps a valid reference.
type SSHProfile struct {
	ID                   string     `gorm:"primaryKey;size:36" json:"id"`
	UserID               string     `gorm:"index;not null;size:36" json:"userId"`
	Name                 string     `gorm:"not null;size:255" json:"name"`
	Host                 string     `gorm:"not null;size:255" json:"host"`
	Port                 int        `gorm:"not null;default:22" json:"port"`
	Username             string     `gorm:"not null;size:255" json:"username"`
	AuthMethod           AuthMethod `gorm:"not null;size:32" json:"authMethod"`
	EncryptedCredentials string     `gorm:"type:text" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	LastUsed             *time.Time `json:"lastUsed,omitempty"`
	Active               bool       `gorm:"not null;default:true" json:"-"`
}

// TableName returns the table name for SSHProfile.
func (SSHProfile) TableName() string {
	return "ssh_profiles"
}

// Validate checks if the profile has valid configuration.
func (p *SSHProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Host == "" {
		return fmt.Errorf("host is required")
	}
	if err := validate.Var(p.Host, "hostname_rfc1123|ipv4"); err != nil {
		return fmt.Errorf("host must be a DNS name or IPv4 address, got %q", p.Host)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", p.Port)
	}
	if p.Username == "" {
		return fmt.Errorf("username is required")
	}
	if !p.AuthMethod.Valid() {
		return fmt.Errorf("auth method must be %q or %q, got %q",
			AuthMethodPassword, AuthMethodPublicKey, p.AuthMethod)
	}
	return nil
}

// Credentials is the plaintext secret material supplied when a profile is
// created or updated. It is encrypted as a unit and stored in
// EncryptedCredentials; it is never persisted or serialized in the clear.
type Credentials struct {
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Empty reports whether no secret material is present.
func (c *Credentials) Empty() bool {
	return c == nil || (c.Password == "" && c.PrivateKey == "" && c.Passphrase == "")
}

// ValidateFor checks that the credentials match the given auth method.
func (c *Credentials) ValidateFor(method AuthMethod) error {
	switch method {
	case AuthMethodPassword:
		if c == nil || c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthMethodPublicKey:
		if c == nil || c.PrivateKey == "" {
			return fmt.Errorf("private key is required for public key authentication")
		}
	default:
		return fmt.Errorf("unknown auth method %q", method)
	}
	return nil
}

// Scrub zeroes the secret fields. Callers do this as soon as the material has
// been handed to the SSH dialer.
func (c *Credentials) Scrub() {
	if c == nil {
		return
	}
	c.Password = ""
	c.PrivateKey = ""
	c.Passphrase = ""
}

// ConnectTarget bundles everything the connection manager needs to dial a
// profile: the resolved endpoint plus decrypted credentials. It lives only on
// the stack of a connect request.
type ConnectTarget struct {
	ProfileID   string
	Host        string
	Port        int
	Username    string
	AuthMethod  AuthMethod
	Credentials Credentials
}
