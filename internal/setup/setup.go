// Package setup registers the MCP server with desktop AI clients that read an
// mcpServers JSON file, and reports whether that registration is healthy.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// ServerName is the key the MCP server is registered under
const ServerName = "trialscout"

// DataDirEnv is passed to the registered server so it finds the same data directory
const DataDirEnv = "TRIALSCOUT_DATA_DIR"

// ClientConfig is the client configuration file. Keys other than mcpServers
// are preserved on save.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	other      map[string]json.RawMessage
}

// ServerEntry launches one MCP server
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// DesktopConfigPath returns the default Claude Desktop configuration file for this OS
func DesktopConfigPath() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads path. A missing file yields an empty configuration.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: map[string]ServerEntry{}, other: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read client config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.other); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if raw, ok := cfg.other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.other, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory
func (c *ClientConfig) Save(path string) error {
	out := make(map[string]any, len(c.other)+1)
	for k, v := range c.other {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal client config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Options describe the server being registered
type Options struct {
	// ConfigPath overrides DesktopConfigPath
	ConfigPath string
	BinaryPath string
	DataDir    string
	// Env is copied into the entry, e.g. GEMINI_API_KEY
	Env map[string]string
}

func (o Options) configPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	return DesktopConfigPath()
}

// Register adds or replaces the server entry and returns the file written
func Register(opts Options) (string, error) {
	path, err := opts.configPath()
	if err != nil {
		return "", err
	}
	if opts.BinaryPath == "" {
		return "", errors.New("server binary path is required")
	}
	binary, err := filepath.Abs(opts.BinaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve binary path: %w", err)
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	entry := ServerEntry{Command: binary, Env: map[string]string{}}
	for k, v := range opts.Env {
		entry.Env[k] = v
	}
	if opts.DataDir != "" {
		entry.Env[DataDirEnv] = opts.DataDir
	}
	if len(entry.Env) == 0 {
		entry.Env = nil
	}
	cfg.MCPServers[ServerName] = entry

	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

// FindBinary looks for name on PATH, then in ./ and ./bin
func FindBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	for _, dir := range []string{".", "bin", "build"} {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("binary %q not found on PATH or in ./, ./bin, ./build", name)
}

// Status describes the registration found in a client configuration
type Status struct {
	ConfigPath string   `json:"config_path"`
	Registered bool     `json:"registered"`
	Command    string   `json:"command,omitempty"`
	DataDir    string   `json:"data_dir"`
	Servers    []string `json:"servers"`
	Issues     []string `json:"issues,omitempty"`
}

// Healthy reports whether the server is registered with no issues
func (s *Status) Healthy() bool {
	return s.Registered && len(s.Issues) == 0
}

// Check inspects the client configuration. defaultDataDir is reported when
// the entry does not set one.
func Check(configPath, defaultDataDir string) (*Status, error) {
	if configPath == "" {
		var err error
		if configPath, err = DesktopConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: configPath, DataDir: defaultDataDir, Servers: []string{}}
	for name := range cfg.MCPServers {
		status.Servers = append(status.Servers, name)
	}
	sort.Strings(status.Servers)

	entry, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, fmt.Sprintf("%s is not registered in %s", ServerName, configPath))
		return status, nil
	}
	status.Registered = true
	status.Command = entry.Command
	if dir := entry.Env[DataDirEnv]; dir != "" {
		status.DataDir = dir
	}

	info, err := os.Stat(entry.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case info.Mode()&0111 == 0 && runtime.GOOS != "windows":
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}

	return status, nil
}
