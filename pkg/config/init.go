package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path. The file gets a
// freshly generated JWT secret.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(sampleConfig, secret)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateSecret returns 64 hex characters.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

const sampleConfig = `# smbconn Configuration File
#
# Values can be overridden with SMBCONN_* environment variables,
# e.g. SMBCONN_LOGGING_LEVEL=DEBUG.

logging:
  level: INFO     # DEBUG, INFO, WARN, ERROR
  format: text    # text, json
  output: stdout  # stdout, stderr or a file path

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040

shutdown_timeout: 30s

metrics:
  enabled: false
  port: 9090

admin:
  enabled: false
  port: 8080
  jwt:
    secret: "%s"
    access_token_duration: 1h
  # users:
  #   - username: admin
  #     password_hash: "<output of 'smbconn config hash-password'>"

transport:
  type: smb2
  dial_timeout: 10s
  max_retries: 3
  initial_interval: 200ms
  max_interval: 5s
  require_signing: false

manager:
  teardown_timeout: 5s

# Sessions and shares connected by 'smbconn serve'.
# mounts:
#   - name: projects
#     server: fileserver.corp:445
#     share: projects
#     share_type: disk
#     account:
#       user: svc-backup
#       domain: CORP
#       password: secret
#     owner: 1000
#     group: 100
#     mode: "0700"
#     share_mode: "0750"
`
