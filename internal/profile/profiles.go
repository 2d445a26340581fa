// internal/profile/profiles.go
package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is one entry of the profiles file.
type Spec struct {
	ID            string `yaml:"id"`
	WalletAddress string `yaml:"wallet_address"`
	// UserDataDir overrides <browser.profiles_root>/<id> for a locally
	// launched browser.
	UserDataDir string `yaml:"user_data_dir,omitempty"`
	// DebuggerURL attaches to a browser that is already running (for example
	// one started by an external profile manager) instead of launching one.
	DebuggerURL string `yaml:"debugger_url,omitempty"`
}

// Remote reports whether the profile is attached to rather than launched.
func (s Spec) Remote() bool { return s.DebuggerURL != "" }

type profilesFile struct {
	Profiles []Spec `yaml:"profiles"`
}

// LoadFile reads and validates a profiles file.
func LoadFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a profiles document. IDs must be unique and every profile
// needs a wallet address to compare the active account against.
func Parse(data []byte) ([]Spec, error) {
	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, errors.New("profiles file lists no profiles")
	}

	seen := make(map[string]struct{}, len(file.Profiles))
	for i, p := range file.Profiles {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("profiles[%d]: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("profiles[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.WalletAddress) == "" {
			return nil, fmt.Errorf("profiles[%d] (%s): wallet_address is required", i, p.ID)
		}
	}
	return file.Profiles, nil
}

// Filter keeps the profiles whose id is in only, preserving file order. An
// empty only keeps everything. Unknown ids are an error so a typo on the
// command line does not silently farm nothing.
func Filter(specs []Spec, only []string) ([]Spec, error) {
	if len(only) == 0 {
		return specs, nil
	}
	want := make(map[string]bool, len(only))
	for _, id := range only {
		want[strings.TrimSpace(id)] = false
	}

	var out []Spec
	for _, s := range specs {
		if _, ok := want[s.ID]; ok {
			want[s.ID] = true
			out = append(out, s)
		}
	}

	var missing []string
	for _, id := range only {
		id = strings.TrimSpace(id)
		if !want[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown profile ids: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
