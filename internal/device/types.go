package device

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// WiredAddress is the reserved address of the wired-audio source.
const WiredAddress = "wired"

// DefaultWiredName is the display name given to the wired source when none is configured.
const DefaultWiredName = "Wired audio"

const (
	maxAddressLength = 64
	maxNameLength    = 248 // Bluetooth device names are at most 248 bytes
)

// Device is a notification source.
type Device struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsWired reports whether d is the wired-audio source.
func (d Device) IsWired() bool {
	return d.Address == WiredAddress
}

// Changes is a batch of mutations applied in a single transaction.
type Changes struct {
	// Insert holds new devices. Their Enabled flag is stored as given.
	Insert []Device

	// Rename holds devices whose Name should be replaced. Only Address and
	// Name are read; Enabled is never written.
	Rename []Device

	// Delete holds addresses to remove.
	Delete []string
}

// Empty reports whether c contains no mutations.
func (c Changes) Empty() bool {
	return len(c.Insert) == 0 && len(c.Rename) == 0 && len(c.Delete) == 0
}

// Count returns the total number of mutations in c.
func (c Changes) Count() int {
	return len(c.Insert) + len(c.Rename) + len(c.Delete)
}

// ValidateAddress checks that address is usable as a primary key.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidAddress)
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidAddress, maxAddressLength)
	}
	if strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: address contains whitespace", ErrInvalidAddress)
	}
	return nil
}

// ValidateDevice checks a device before it is written.
func ValidateDevice(d *Device) error {
	if err := ValidateAddress(d.Address); err != nil {
		return err
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ClampName shortens name to the longest prefix of at most maxNameLength
// bytes that ends on a rune boundary.
func ClampName(name string) string {
	if len(name) <= maxNameLength {
		return name
	}
	cut := maxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// FilterEnabled returns the enabled devices of list, preserving order.
func FilterEnabled(list []Device) []Device {
	out := make([]Device, 0, len(list))
	for _, d := range list {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}
