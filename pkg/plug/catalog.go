package plug

import (
	"fmt"
	"os"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"

	"github.com/plugmeter/plugmeter/pkg/types"
)

// Catalog is the fixed list of plugs the dashboard can show.
type Catalog struct {
	devices []types.Device
}

type catalogFile struct {
	Devices []types.Device `yaml:"devices"`
}

func configuredCatalog() *Catalog {
	path := lflag.String("devices-file", "", "YAML file listing devices; when empty PLUG_DEVICE_ID_1 and PLUG_DEVICE_ID_2 are used")

	c := &Catalog{}
	lflag.Do(func() {
		if *path != "" {
			loaded, err := LoadCatalog(*path)
			if err != nil {
				panic(fmt.Sprintf("failed to load devices file: %v", err))
			}
			*c = *loaded
			return
		}
		*c = *EnvCatalog(os.Getenv)
	})
	return c
}

// NewCatalog creates a catalog from devices, skipping entries without an id.
func NewCatalog(devices ...types.Device) *Catalog {
	c := &Catalog{}
	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		if d.Type == "" {
			d.Type = "Smart Plug"
		}
		if d.Location == "" {
			d.Location = "Smart Plug"
		}
		c.devices = append(c.devices, d)
	}
	return c
}

// LoadCatalog reads a YAML catalog of the form:
//
//	devices:
//	  - id: bf123
//	    name: Deep Freezer
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseCatalog(b)
}

// ParseCatalog parses YAML catalog bytes.
func ParseCatalog(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse devices: %w", err)
	}
	return NewCatalog(f.Devices...), nil
}

// EnvCatalog builds the two-device catalog from environment variables.
func EnvCatalog(getenv func(string) string) *Catalog {
	return NewCatalog(
		types.Device{ID: getenv("PLUG_DEVICE_ID_1"), Name: "Deep Freezer"},
		types.Device{ID: getenv("PLUG_DEVICE_ID_2"), Name: "Computer"},
	)
}

// Devices returns a copy of the device list.
func (c *Catalog) Devices() []types.Device {
	out := make([]types.Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// IDs returns the device ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.devices))
	for i, d := range c.devices {
		ids[i] = d.ID
	}
	return ids
}

// Lookup returns the device with the given id.
func (c *Catalog) Lookup(id string) (types.Device, error) {
	for _, d := range c.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return types.Device{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Default returns the first device.
func (c *Catalog) Default() (types.Device, error) {
	if len(c.devices) == 0 {
		return types.Device{}, fmt.Errorf("%w: catalog is empty", ErrNotFound)
	}
	return c.devices[0], nil
}
