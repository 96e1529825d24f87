package jsop

import (
	"encoding/json"
	"fmt"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Security levels
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

// Defaults applied by ApplyDefaults
const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxStackDepth = 100
)

// Config configures a JavaScript operator or source
type Config struct {
	// Script is evaluated once; its completion value is the operator or the source
	Script string `json:"script"`

	// Name identifies the script in logs; defaults to "js"
	Name string `json:"name,omitempty"`

	// Timeout bounds script evaluation and every later call into the script
	Timeout time.Duration `json:"timeout,omitempty"`

	// SecurityLevel is one of strict, standard or permissive
	SecurityLevel string `json:"security_level,omitempty"`

	// MaxStackDepth is the maximum JavaScript call stack depth
	MaxStackDepth int `json:"max_stack_depth,omitempty"`
}

// ApplyDefaults sets default values for unset fields
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "js"
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = SecurityLevelStandard
	}
	if c.MaxStackDepth == 0 {
		c.MaxStackDepth = DefaultMaxStackDepth
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Script == "" {
		return fmt.Errorf("script is required: %w", sdkerrors.ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %w", sdkerrors.ErrInvalidConfig)
	}
	switch c.SecurityLevel {
	case SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
	default:
		return fmt.Errorf("invalid security level %q: %w", c.SecurityLevel, sdkerrors.ErrInvalidConfig)
	}
	if c.MaxStackDepth <= 0 {
		return fmt.Errorf("max_stack_depth must be positive: %w", sdkerrors.ErrInvalidConfig)
	}
	return nil
}

// UnmarshalJSON accepts the timeout as a duration string ("250ms") or as
// whole milliseconds
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		Timeout json.RawMessage `json:"timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Timeout) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.Timeout, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		c.Timeout = d
		return nil
	}

	var ms int64
	if err := json.Unmarshal(aux.Timeout, &ms); err != nil {
		return fmt.Errorf("invalid timeout format: %w", err)
	}
	c.Timeout = time.Duration(ms) * time.Millisecond
	return nil
}
