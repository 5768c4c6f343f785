package models

import "fmt"

// Runtime identifies the language stack a service is implemented in
type Runtime string

const (
	RuntimePython3 Runtime = "python3"
	RuntimeNodeJS  Runtime = "nodejs"
	RuntimeGo      Runtime = "go"
)

// ParseRuntime accepts only the closed set of supported stacks
func ParseRuntime(s string) (Runtime, error) {
	switch Runtime(s) {
	case RuntimePython3, RuntimeNodeJS, RuntimeGo:
		return Runtime(s), nil
	default:
		return "", fmt.Errorf("unsupported service stack %q: supported stacks are %q, %q and %q",
			s, RuntimePython3, RuntimeNodeJS, RuntimeGo)
	}
}

// Foreign reports whether calls must cross into another interpreter
func (r Runtime) Foreign() bool {
	return r == RuntimePython3 || r == RuntimeNodeJS
}

// ServiceDescriptor is the parsed Hutfile
type ServiceDescriptor struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version,omitempty" json:"version,omitempty"`
	Description string   `yaml:"desc,omitempty" json:"desc,omitempty"`
	Stack       Runtime  `yaml:"stack" json:"stack"`
	Entrypoint  string   `yaml:"entrypoint" json:"entrypoint"`
	Interfaces  []string `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
}

// InterfaceNames returns the declared interfaces, defaulting to the service name
func (d *ServiceDescriptor) InterfaceNames() []string {
	if len(d.Interfaces) > 0 {
		return d.Interfaces
	}
	return []string{d.Name}
}
