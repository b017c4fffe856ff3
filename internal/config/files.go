// this module defines the certificates used for the optional TLS transport
// and the default location of the store directory
package config

import (
	"os"
	"path/filepath"
)

// file paths containing the optional tls certs. A required TLS path is an
// explicit spec Non-goal, so kvs-server/kvs-client only turn TLS on when a
// cert is actually present here or passed explicitly via
// --tls-cert/--tls-key/--tls-ca; see ResolveTLSFiles.
var (
	CAFile         = configFile("ca.pem")
	ServerCertFile = configFile("server.pem")
	ServerKeyFile  = configFile("server-key.pem")
	ClientCertFile = configFile("client.pem")
	ClientKeyFile  = configFile("client-key.pem")
)

// ResolveTLSFiles fills in any of cert/key/ca left empty (flag not passed)
// with the matching $CONFIG_DIR/~/.kvs default, but only if that default
// file actually exists on disk - an absent default must not force TLS on.
func ResolveTLSFiles(cert, key, ca, defaultCert, defaultKey, defaultCA string) (string, string, string) {
	if cert == "" && fileExists(defaultCert) {
		cert = defaultCert
	}
	if key == "" && fileExists(defaultKey) {
		key = defaultKey
	}
	if ca == "" && fileExists(defaultCA) {
		ca = defaultCA
	}
	return cert, key, ca
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func configFile(filename string) string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, filename)
	}
	// default to the user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(homeDir, ".kvs", filename)
}

// DefaultStoreDir returns the directory a kvs-server without an explicit
// --dir flag persists its segments and manifest in.
func DefaultStoreDir() string {
	if dir := os.Getenv("KVS_DIR"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".kvs", "data")
}
