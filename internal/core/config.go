package core

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// TransportSpec describes how to open one transport session: a launcher
// command, its arguments, and an environment overlay.
type TransportSpec struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// agentURLPattern extracts the trailing path segment of a URL of the
// form ".../agents/<agent_id>" from anywhere inside a transport arg.
var agentURLPattern = regexp.MustCompile(`/agents/([A-Za-z0-9_-]+)`)

// agentIDFromSpec scans a TransportSpec's args for an agent URL and
// returns the agent_id it encodes, if any.
func agentIDFromSpec(spec TransportSpec) (string, bool) {
	for _, arg := range spec.Args {
		if m := agentURLPattern.FindStringSubmatch(arg); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// primaryTransportName is the conventional label for the messaging
// channel a monitor sends/receives through.
const primaryTransportName = "messaging"

// AgentConfig is a resolved agent descriptor: its authoritative identity,
// the transports it can open, and opaque pass-throughs for permissions
// and handler parameters.
type AgentConfig struct {
	AgentID        AgentID
	Transports     map[string]TransportSpec
	TransportOrder []string // declaration order, for primary-selection fallback
	Permissions    map[string]any
	HandlerParams  map[string]any
}

// rawDescriptor is the on-disk YAML shape. The file name is never
// authoritative; agent_id is always derived from a transport URL.
type rawDescriptor struct {
	Transports    map[string]TransportSpec `yaml:"transports"`
	Permissions   map[string]any           `yaml:"permissions"`
	HandlerParams map[string]any           `yaml:"handler_params"`
}

// ErrMalformedDescriptor is returned when a descriptor file cannot be
// resolved into a usable AgentConfig. Callers should log and skip rather
// than abort a directory scan.
type ErrMalformedDescriptor struct {
	Path   string
	Reason string
}

func (e *ErrMalformedDescriptor) Error() string {
	return fmt.Sprintf("malformed agent descriptor %s: %s", e.Path, e.Reason)
}

// LoadAgentConfig parses a single descriptor file and resolves its
// authoritative agent_id and primary transport.
func LoadAgentConfig(path string) (AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentConfig{}, &ErrMalformedDescriptor{Path: path, Reason: err.Error()}
	}

	var raw rawDescriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return AgentConfig{}, &ErrMalformedDescriptor{Path: path, Reason: err.Error()}
	}
	if len(raw.Transports) == 0 {
		return AgentConfig{}, &ErrMalformedDescriptor{Path: path, Reason: "no transports declared"}
	}

	// Declaration order matters for fallback primary selection; YAML maps
	// don't preserve order through yaml.v3's map[string]T decode, so we
	// re-derive order via a yaml.Node pass.
	order, err := transportDeclOrder(data)
	if err != nil {
		return AgentConfig{}, &ErrMalformedDescriptor{Path: path, Reason: err.Error()}
	}

	var agentID string
	var found bool
	for _, name := range order {
		if id, ok := agentIDFromSpec(raw.Transports[name]); ok {
			agentID = id
			found = true
			break
		}
	}
	if !found {
		return AgentConfig{}, &ErrMalformedDescriptor{Path: path, Reason: "no transport encodes an agent_id URL"}
	}

	validated, err := ValidateAgentID(agentID)
	if err != nil {
		return AgentConfig{}, &ErrMalformedDescriptor{Path: path, Reason: err.Error()}
	}

	return AgentConfig{
		AgentID:        validated,
		Transports:     raw.Transports,
		TransportOrder: order,
		Permissions:    raw.Permissions,
		HandlerParams:  raw.HandlerParams,
	}, nil
}

// transportDeclOrder re-parses the document to recover key declaration
// order under the top-level "transports" mapping.
func transportDeclOrder(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "transports" {
			mapping := root.Content[i+1]
			var order []string
			for j := 0; j+1 < len(mapping.Content); j += 2 {
				order = append(order, mapping.Content[j].Value)
			}
			return order, nil
		}
	}
	return nil, fmt.Errorf("no transports key")
}

// PrimaryTransport selects the primary session: the first entry
// whose name matches the conventional messaging label, otherwise the
// first declared entry.
func (c AgentConfig) PrimaryTransport() (name string, spec TransportSpec, ok bool) {
	if spec, ok := c.Transports[primaryTransportName]; ok {
		return primaryTransportName, spec, true
	}
	if len(c.TransportOrder) == 0 {
		return "", TransportSpec{}, false
	}
	first := c.TransportOrder[0]
	spec, ok = c.Transports[first]
	return first, spec, ok
}

// LoadAgentConfigs scans dir for descriptor files (*.yaml, *.yml) and
// returns every config that resolves successfully. Malformed files are
// skipped; callers typically log the returned per-file errors.
func LoadAgentConfigs(dir string) ([]AgentConfig, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{err}
	}

	var configs []AgentConfig
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		cfg, err := LoadAgentConfig(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errs
}
