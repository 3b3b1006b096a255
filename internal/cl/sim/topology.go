package sim

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/clsession/internal/cl"
)

// Topology describes the platforms and devices a simulated runtime exposes.
type Topology struct {
	Platforms []PlatformSpec `yaml:"platforms"`
}

// PlatformSpec describes one simulated platform.
type PlatformSpec struct {
	Name       string       `yaml:"name"`
	Vendor     string       `yaml:"vendor"`
	Version    string       `yaml:"version"`
	Profile    string       `yaml:"profile"`
	Extensions []string     `yaml:"extensions"`
	Devices    []DeviceSpec `yaml:"devices"`
}

// DeviceSpec describes one simulated device. Zero values are replaced by
// defaults when the topology is loaded.
type DeviceSpec struct {
	Name                  string        `yaml:"name"`
	Type                  cl.DeviceType `yaml:"type"`
	Vendor                string        `yaml:"vendor"`
	Version               string        `yaml:"version"`
	DriverVersion         string        `yaml:"driver_version"`
	OpenCLCVersion        string        `yaml:"opencl_c_version"`
	Profile               string        `yaml:"profile"`
	ComputeUnits          uint32        `yaml:"compute_units"`
	MaxClockMHz           uint32        `yaml:"max_clock_mhz"`
	MaxConstantBufferSize uint64        `yaml:"max_constant_buffer_size"`
	MaxWorkGroupSize      uint64        `yaml:"max_work_group_size"`
	GlobalMemSize         uint64        `yaml:"global_mem_size"`
	Extensions            []string      `yaml:"extensions"`
}

const (
	defaultComputeUnits          = 8
	defaultMaxClockMHz           = 1000
	defaultMaxConstantBufferSize = 64 * 1024
	defaultMaxWorkGroupSize      = 256
	defaultGlobalMemSize         = 256 * 1024 * 1024
)

// DefaultTopology is a single platform hosting a single GPU-class device.
func DefaultTopology() Topology {
	return Topology{
		Platforms: []PlatformSpec{
			{
				Name:       "Simulated Platform",
				Extensions: []string{"cl_khr_icd"},
				Devices: []DeviceSpec{
					{
						Name:       "Simulated GPU",
						Type:       cl.DeviceTypeGPU,
						Extensions: []string{"cl_khr_global_int32_base_atomics", "cl_khr_byte_addressable_store"},
					},
				},
			},
		},
	}
}

// ParseTopology decodes a YAML topology and fills in defaults.
func ParseTopology(data []byte) (Topology, error) {
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return Topology{}, errors.Wrap(err, "failed to parse topology")
	}
	if len(topo.Platforms) == 0 {
		return Topology{}, errors.New("topology declares no platforms")
	}
	return topo.withDefaults(), nil
}

// LoadTopology reads a YAML topology file.
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, errors.Wrapf(err, "failed to read topology %s", path)
	}
	topo, err := ParseTopology(data)
	if err != nil {
		return Topology{}, errors.Wrapf(err, "topology %s", path)
	}
	return topo, nil
}

func (t Topology) withDefaults() Topology {
	out := Topology{Platforms: make([]PlatformSpec, len(t.Platforms))}
	for i, p := range t.Platforms {
		if p.Name == "" {
			p.Name = "Simulated Platform"
		}
		if p.Vendor == "" {
			p.Vendor = "clsession"
		}
		if p.Version == "" {
			p.Version = "OpenCL 1.2 sim"
		}
		if p.Profile == "" {
			p.Profile = "FULL_PROFILE"
		}
		devices := make([]DeviceSpec, len(p.Devices))
		for j, d := range p.Devices {
			devices[j] = d.withDefaults(p)
		}
		p.Devices = devices
		out.Platforms[i] = p
	}
	return out
}

func (d DeviceSpec) withDefaults(p PlatformSpec) DeviceSpec {
	if d.Name == "" {
		d.Name = "Simulated Device"
	}
	if d.Type == "" {
		d.Type = cl.DeviceTypeGPU
	}
	d.Type = cl.DeviceType(normalizeDeviceType(string(d.Type)))
	if d.Vendor == "" {
		d.Vendor = p.Vendor
	}
	if d.Version == "" {
		d.Version = "OpenCL 1.2 sim"
	}
	if d.DriverVersion == "" {
		d.DriverVersion = "1.0"
	}
	if d.OpenCLCVersion == "" {
		d.OpenCLCVersion = "OpenCL C 1.2"
	}
	if d.Profile == "" {
		d.Profile = p.Profile
	}
	if d.ComputeUnits == 0 {
		d.ComputeUnits = defaultComputeUnits
	}
	if d.MaxClockMHz == 0 {
		d.MaxClockMHz = defaultMaxClockMHz
	}
	if d.MaxConstantBufferSize == 0 {
		d.MaxConstantBufferSize = defaultMaxConstantBufferSize
	}
	if d.MaxWorkGroupSize == 0 {
		d.MaxWorkGroupSize = defaultMaxWorkGroupSize
	}
	if d.GlobalMemSize == 0 {
		d.GlobalMemSize = defaultGlobalMemSize
	}
	return d
}

func normalizeDeviceType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "gpu":
		return string(cl.DeviceTypeGPU)
	case "cpu":
		return string(cl.DeviceTypeCPU)
	case "accelerator":
		return string(cl.DeviceTypeAccelerator)
	case "default":
		return string(cl.DeviceTypeDefault)
	default:
		return string(cl.DeviceTypeUnknown)
	}
}
