package cl

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a Runtime from a provider-specific configuration string.
type Constructor func(config string) (Runtime, error)

// EnvRuntime is the environment variable holding the default runtime
// configuration, formatted as "<name>[:<config>]".
const EnvRuntime = "CLSESSION_RUNTIME"

var (
	registryMu      sync.RWMutex
	constructors    = make(map[string]Constructor)
	firstRegistered string
)

// Register makes a runtime available under name. Call it from an init function.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(constructors) == 0 {
		firstRegistered = name
	}
	constructors[name] = ctor
}

// Registered lists the names of all registered runtimes in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registeredLocked()
}

// OpenDefault opens the runtime named by $CLSESSION_RUNTIME, falling back to
// the first registered runtime.
func OpenDefault() (Runtime, error) {
	if config, ok := os.LookupEnv(EnvRuntime); ok && config != "" {
		return Open(config)
	}
	return Open("")
}

// Open parses "<name>[:<config>]" and constructs the named runtime.
// An empty name selects the first registered runtime.
func Open(config string) (Runtime, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if len(constructors) == 0 {
		return nil, fmt.Errorf("no runtimes registered")
	}

	name, providerConfig := config, ""
	if idx := strings.Index(config, ":"); idx != -1 {
		name, providerConfig = config[:idx], config[idx+1:]
	}
	if name == "" {
		name = firstRegistered
	}

	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown runtime %q (registered: %s)", name, strings.Join(registeredLocked(), ", "))
	}
	rt, err := ctor(providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open runtime %q: %w", name, err)
	}
	return rt, nil
}

func registeredLocked() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
