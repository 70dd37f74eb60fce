package tty

import "gophercore/device"

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForVT,
	})
}
