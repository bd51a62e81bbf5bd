package realm

import (
	"errors"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/monitoring"
)

var (
	ErrClosed     = errors.New("realm is closed")
	ErrPoolClosed = errors.New("realm pool is closed")
	ErrTimeout    = errors.New("realm acquisition timeout")
)

// Config defines realm configuration
type Config struct {
	Name             string        // Used in logs and metrics
	Timeout          time.Duration // Execute timeout, zero disables it
	MaxCallStackSize int           // Zero leaves the goja default
	EnableConsole    bool          // Bind console.* to the realm logger
	Metrics          *monitoring.Metrics
	// Init runs on the loop after the globals are installed, at start and
	// after every Reset.
	Init func(r *Realm) error
}

// Result holds execution result
type Result struct {
	Value    interface{}   // Exported return value
	Raw      goja.Value    // Only valid on the realm loop
	Duration time.Duration // Execution time
}

// DefaultConfig returns a config with console enabled and a 5s timeout.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
	}
}
