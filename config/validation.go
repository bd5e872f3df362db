package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks the struct tag rules first and then the rules that relate
// several fields to each other.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return c.validateCustomRules()
}

func (c *Config) validateCustomRules() error {
	if c.BusWidth > c.SlotWidth {
		return fmt.Errorf("bus_width: %d data lines requested but slot only wires %d", c.BusWidth, c.SlotWidth)
	}

	// mount point, separator, at least one name byte and the terminator
	if need := len(c.MountPoint) + 3; need > c.PathCapacity {
		return fmt.Errorf("path_capacity: %d cannot hold paths under %q (need at least %d)",
			c.PathCapacity, c.MountPoint, need)
	}

	if c.AllocationUnitSize != 0 {
		if c.AllocationUnitSize%512 != 0 || c.AllocationUnitSize&(c.AllocationUnitSize-1) != 0 {
			return fmt.Errorf("allocation_unit_size: %d is not a power of two multiple of 512", c.AllocationUnitSize)
		}
	}

	if c.Driver == "hostdir" && c.CardDir == "" {
		return fmt.Errorf("card_dir: required by the hostdir driver")
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
