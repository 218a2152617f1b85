package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/consultorio/pkg/audio"
)

// ErrDriverNotRegistered is returned by Create* methods when no factory has
// been registered under the requested driver name.
var ErrDriverNotRegistered = errors.New("config: audio driver not registered")

// InputFactory builds a capture platform from the audio section. The
// returned close function, if non-nil, releases the driver.
type InputFactory func(AudioConfig) (audio.Platform, func() error, error)

// PlayerFactory builds an output player from the audio section.
type PlayerFactory func(AudioConfig) (audio.Player, func() error, error)

// Registry maps audio driver names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	inputs  map[string]InputFactory
	players map[string]PlayerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		inputs:  make(map[string]InputFactory),
		players: make(map[string]PlayerFactory),
	}
}

// RegisterInput registers a capture driver under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterInput(name string, f InputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[name] = f
}

// RegisterPlayer registers an output driver under name.
func (r *Registry) RegisterPlayer(name string, f PlayerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[name] = f
}

// CreateInput instantiates the capture driver named by cfg.Input.
// Returns [ErrDriverNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateInput(cfg AudioConfig) (audio.Platform, func() error, error) {
	r.mu.RLock()
	f, ok := r.inputs[cfg.Input]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: input/%q", ErrDriverNotRegistered, cfg.Input)
	}
	return f(cfg)
}

// CreatePlayer instantiates the output driver named by cfg.Player.
func (r *Registry) CreatePlayer(cfg AudioConfig) (audio.Player, func() error, error) {
	r.mu.RLock()
	f, ok := r.players[cfg.Player]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: player/%q", ErrDriverNotRegistered, cfg.Player)
	}
	return f(cfg)
}
