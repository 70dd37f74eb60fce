package device

import (
	"gophercore/kernel"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. Any driver output
	// emitted while initializing should be written to w.
	DriverInit(w io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular piece
// of hardware and returns a driver for it, or nil if the hardware is not
// present.
type ProbeFn func() Driver

// DetectOrder specifies the order in which the hal package invokes each
// registered driver's probe function.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed at the beginning of the HW detection phase.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderBeforeACPI specifies that the driver's probe function
	// should be executed before attempting any ACPI-based HW detection.
	DetectOrderBeforeACPI = -127

	// DetectOrderACPI specifies that the driver's probe function should
	// be executed after parsing of the ACPI tables completes.
	DetectOrderACPI = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed at the end of the HW detection phase.
	DetectOrderLast = 127
)

// DriverInfo describes a driver to the hal package.
type DriverInfo struct {
	// Order specifies when the driver's probe function will be invoked.
	Order DetectOrder

	// Probe checks for the presence of the piece of hardware this
	// driver handles.
	Probe ProbeFn
}

// DriverInfoList is a list of DriverInfo entries that implements
// sort.Interface, ordering entries by their DetectOrder.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list by their detect order.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var registeredDrivers DriverInfoList

// RegisterDriver adds the supplied driver info to the list of registered
// drivers. Each driver package is expected to call RegisterDriver from an
// init block.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
