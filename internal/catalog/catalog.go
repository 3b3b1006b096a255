// Package catalog enumerates accelerator platforms and devices and selects the
// device a compute session runs on.
package catalog

import (
	"log/slog"

	"github.com/cwbudde/clsession/internal/cl"
)

// Requirements lists the extensions a device must support. Some runtimes
// report a capability per platform and some per device. Platform and Device
// are checked strictly at their own tier; an extension in Any is satisfied
// when either the device or its platform reports it.
type Requirements struct {
	Platform []string `yaml:"platform_extensions"`
	Device   []string `yaml:"device_extensions"`
	Any      []string `yaml:"extensions"`
}

// Require returns Requirements demanding exts at whichever tier the runtime
// reports them.
func Require(exts ...string) Requirements {
	return Requirements{Any: append([]string(nil), exts...)}
}

// IsZero reports whether no extension is required.
func (r Requirements) IsZero() bool {
	return len(r.Platform) == 0 && len(r.Device) == 0 && len(r.Any) == 0
}

// Catalog is the enumerated hardware plus the device chosen for a set of
// requirements. It is immutable once built.
type Catalog struct {
	platforms []*Platform
	req       Requirements
	device    *Device
	platform  *Platform
}

// New enumerates rt and selects the first device satisfying req. A nil
// logger means slog.Default().
func New(rt cl.Runtime, req Requirements, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	platforms, err := enumerate(rt, logger)
	if err != nil {
		return nil, err
	}
	platform, device, err := Select(platforms, req)
	if err != nil {
		return nil, err
	}

	logger.Info("Selected device",
		"device", device.Name(),
		"platform", platform.Name(),
		"type", device.Type(),
		"runtime", rt.Name())

	return &Catalog{platforms: platforms, req: req, device: device, platform: platform}, nil
}

// Enumerate builds descriptors for every platform and device rt exposes.
// Platforms without devices are kept.
func Enumerate(rt cl.Runtime) ([]*Platform, error) {
	return enumerate(rt, slog.Default())
}

func enumerate(rt cl.Runtime, logger *slog.Logger) ([]*Platform, error) {
	ids, err := rt.PlatformIDs()
	if err != nil {
		if status, ok := cl.StatusOf(err); ok && status == cl.StatusPlatformNotFoundKHR {
			return nil, cl.Errorf(cl.KindResolution, "enumerate_platforms", "%w", cl.ErrNoPlatforms)
		}
		return nil, cl.Errorf(cl.KindResolution, "enumerate_platforms", "%w", err)
	}
	if len(ids) == 0 {
		return nil, cl.Errorf(cl.KindResolution, "enumerate_platforms", "%w", cl.ErrNoPlatforms)
	}

	platforms := make([]*Platform, 0, len(ids))
	for _, id := range ids {
		p, err := newPlatform(rt, id)
		if err != nil {
			return nil, cl.Errorf(cl.KindResolution, "enumerate_devices", "%w", err)
		}
		logger.Debug("Found platform", "name", p.Name(), "devices", len(p.Devices))
		platforms = append(platforms, p)
	}
	return platforms, nil
}

// Select filters platforms by the platform-tier extensions, then their devices
// by the device-tier extensions, then by the untiered extensions, and returns
// the first survivor in enumeration order. It fails naming the first extension
// that empties the candidate list.
func Select(platforms []*Platform, req Requirements) (*Platform, *Device, error) {
	candidates := platforms
	for _, ext := range req.Platform {
		var kept []*Platform
		for _, p := range candidates {
			ok, err := p.SupportsExtension(ext)
			if err != nil {
				return nil, nil, cl.Errorf(cl.KindResolution, "select_platform", "%w", err)
			}
			if ok {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			return nil, nil, cl.Errorf(cl.KindResolution, "select_platform",
				"%w: no platform supports %s", cl.ErrExtensionMissing, ext)
		}
		candidates = kept
	}

	type candidate struct {
		platform *Platform
		device   *Device
	}
	var devices []candidate
	for _, p := range candidates {
		for _, d := range p.Devices {
			devices = append(devices, candidate{p, d})
		}
	}
	if len(devices) == 0 {
		return nil, nil, cl.Errorf(cl.KindResolution, "select_device", "%w", cl.ErrNoDevices)
	}

	for _, ext := range req.Device {
		var kept []candidate
		for _, c := range devices {
			ok, err := c.device.SupportsExtension(ext)
			if err != nil {
				return nil, nil, cl.Errorf(cl.KindResolution, "select_device", "%w", err)
			}
			if ok {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return nil, nil, cl.Errorf(cl.KindResolution, "select_device",
				"%w: no device supports %s", cl.ErrExtensionMissing, ext)
		}
		devices = kept
	}

	for _, ext := range req.Any {
		var kept []candidate
		for _, c := range devices {
			ok, err := Supports(c.platform, c.device, ext)
			if err != nil {
				return nil, nil, cl.Errorf(cl.KindResolution, "select_device", "%w", err)
			}
			if ok {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return nil, nil, cl.Errorf(cl.KindResolution, "select_device",
				"%w: no device supports %s", cl.ErrExtensionMissing, ext)
		}
		devices = kept
	}

	return devices[0].platform, devices[0].device, nil
}

// Supports reports whether d or its platform p lists ext.
func Supports(p *Platform, d *Device, ext string) (bool, error) {
	ok, err := d.SupportsExtension(ext)
	if err != nil || ok {
		return ok, err
	}
	return p.SupportsExtension(ext)
}

func (c *Catalog) Platforms() []*Platform { return c.platforms }

func (c *Catalog) Requirements() Requirements { return c.req }

// Device returns the chosen device.
func (c *Catalog) Device() *Device { return c.device }

// Platform returns the platform hosting the chosen device.
func (c *Catalog) Platform() *Platform { return c.platform }

func (c *Catalog) DeviceID() cl.DeviceID { return c.device.ID }
