package rhi

import (
	"testing"

	"github.com/gogpu/rhi/driver"
)

func TestOptions(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		check func(t *testing.T, c config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c config) {
				if c.ringSize != DefaultUniformRingSize {
					t.Errorf("ringSize = %d, want %d", c.ringSize, DefaultUniformRingSize)
				}
				if !c.formats.Has(driver.ShaderFormatWGSL) || !c.formats.Has(driver.ShaderFormatSPIRV) {
					t.Errorf("formats = %v, want WGSL and SPIR-V", c.formats)
				}
				if c.debug || c.assertions {
					t.Error("debug or assertions enabled by default")
				}
			},
		},
		{
			name: "zero ring size ignored",
			opts: []Option{WithUniformRingSize(0)},
			check: func(t *testing.T, c config) {
				if c.ringSize != DefaultUniformRingSize {
					t.Errorf("ringSize = %d, want %d", c.ringSize, DefaultUniformRingSize)
				}
			},
		},
		{
			name: "params accumulate",
			opts: []Option{WithDriverParam("a", "1"), WithDriverParam("b", "2"), WithDriverParam("a", "3")},
			check: func(t *testing.T, c config) {
				if len(c.params) != 2 || c.params["a"] != "3" || c.params["b"] != "2" {
					t.Errorf("params = %v, want a=3 b=2", c.params)
				}
			},
		},
		{
			name: "flags",
			opts: []Option{WithDriver("software"), WithDebug(), WithAssertions(), WithShaderFormats(ShaderFormatSPIRV)},
			check: func(t *testing.T, c config) {
				if c.driver != "software" || !c.debug || !c.assertions {
					t.Errorf("config = %+v", c)
				}
				if c.formats != ShaderFormatSPIRV {
					t.Errorf("formats = %v, want SPIR-V only", c.formats)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			for _, o := range tt.opts {
				o(&c)
			}
			tt.check(t, c)
		})
	}
}

func TestRingSizeAligned(t *testing.T) {
	d := newTestDevice(t, WithUniformRingSize(100))
	align := uint64(d.limits.MinUniformBufferOffsetAlignment)
	if align == 0 {
		align = 256
	}
	if want := driver.AlignUp(uint64(100), align); d.ringSize != want {
		t.Errorf("ringSize = %d, want %d", d.ringSize, want)
	}
}

func TestEnvDriver(t *testing.T) {
	t.Setenv(EnvDriver, "no-such-driver")
	if _, err := NewDevice(); err == nil {
		t.Fatal("NewDevice() with unknown RHI_DRIVER succeeded")
	}
	t.Setenv(EnvDriver, "software")
	d, err := NewDevice()
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer d.Destroy()
	if d.Driver() != "software" {
		t.Errorf("Driver() = %q, want software", d.Driver())
	}
}
