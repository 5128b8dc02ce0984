// Package config reads the daemon and CLI's runtime configuration from a
// closed set of environment variables. There is no config file format to
// parse: every path the core needs is named directly by an env var with a
// documented default.
package config

import "os"

// Config holds every path and tunable the daemon, CLI, and boot applier
// need. It is constructed once per process invocation and passed
// explicitly to constructors — no package-level global state, so tests can
// construct independent Configs in parallel.
type Config struct {
	// SocketPath is the Unix-domain socket the daemon binds.
	SocketPath string
	// ActiveFile is the path to the active policy document.
	ActiveFile string
	// PendingFile is the path to the pending policy document.
	PendingFile string
	// KeyDir holds the signing key pair: the private key (control domain
	// only) and the public key (daemon read-only).
	KeyDir string
	// SchemaFile is the CUE policy schema file.
	SchemaFile string
	// AuditDB is the SQLite audit log path.
	AuditDB string
}

const (
	envSocket  = "CONTROLBUS_SOCKET"
	envActive  = "CONTROLBUS_ACTIVE_FILE"
	envPending = "CONTROLBUS_PENDING_FILE"
	envKeyDir  = "CONTROLBUS_KEY_DIR"
	envSchema  = "CONTROLBUS_SCHEMA_FILE"
	envAuditDB = "CONTROLBUS_AUDIT_DB"
)

const (
	defaultSocket  = "/run/controlbus/policyd.sock"
	defaultActive  = "/var/lib/controlbus/active.json"
	defaultPending = "/var/lib/controlbus/pending.json"
	defaultKeyDir  = "/etc/controlbus/keys"
	defaultSchema  = "/etc/controlbus/schema.cue"
	defaultAuditDB = "/var/lib/controlbus/audit.db"
)

// FromEnv reads Config from the environment, applying defaults for any
// variable left unset.
func FromEnv() Config {
	return Config{
		SocketPath:  getenv(envSocket, defaultSocket),
		ActiveFile:  getenv(envActive, defaultActive),
		PendingFile: getenv(envPending, defaultPending),
		KeyDir:      getenv(envKeyDir, defaultKeyDir),
		SchemaFile:  getenv(envSchema, defaultSchema),
		AuditDB:     getenv(envAuditDB, defaultAuditDB),
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// PrivateKeyPath is sign_sk under KeyDir; see internal/keyfile for the
// on-disk layout.
func (c Config) PrivateKeyPath() string {
	return c.KeyDir + "/sign_sk"
}

// PublicKeyPath is sign_pk under KeyDir.
func (c Config) PublicKeyPath() string {
	return c.KeyDir + "/sign_pk"
}
