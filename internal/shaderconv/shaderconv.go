// Package shaderconv translates shader source between the formats
// applications supply and the formats drivers accept.
package shaderconv

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/cache"
)

// DefaultCacheSize is the number of translations kept by New(0).
const DefaultCacheSize = 64

// ErrTranslate wraps every compiler failure.
var ErrTranslate = errors.New("shaderconv: translation failed")

// Translatable returns the formats an application can supply for a driver
// accepting native: the native formats plus every source format that can be
// translated into one of them.
func Translatable(native driver.ShaderFormat) driver.ShaderFormat {
	if native.Has(driver.ShaderFormatSPIRV) {
		native |= driver.ShaderFormatWGSL
	}
	return native
}

// Expand returns the driver formats usable for an application able to
// supply formats.
func Expand(formats driver.ShaderFormat) driver.ShaderFormat {
	if formats.Has(driver.ShaderFormatWGSL) {
		formats |= driver.ShaderFormatSPIRV
	}
	return formats
}

// Translator converts WGSL to SPIR-V with naga and caches the results by
// content hash.
type Translator struct {
	debug bool
	cache *cache.Cache[[sha256.Size]byte, []byte]
}

// New returns a translator caching up to size translations. With debug set,
// generated SPIR-V carries debug names.
func New(size int, debug bool) *Translator {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Translator{
		debug: debug,
		cache: cache.New[[sha256.Size]byte, []byte](size),
	}
}

// Convert returns code in a format accepted by native. Code already in an
// accepted format is returned unchanged.
func (t *Translator) Convert(format driver.ShaderFormat, code []byte, native driver.ShaderFormat) (driver.ShaderFormat, []byte, error) {
	if native.Has(format) {
		return format, code, nil
	}
	if format == driver.ShaderFormatWGSL && native.Has(driver.ShaderFormatSPIRV) {
		spirv, err := t.WGSLToSPIRV(code)
		if err != nil {
			return 0, nil, err
		}
		return driver.ShaderFormatSPIRV, spirv, nil
	}
	return 0, nil, errors.Wrapf(driver.ErrShaderFormat, "shaderconv: cannot turn %s into %s", format, native)
}

// WGSLToSPIRV compiles WGSL source to a SPIR-V binary.
func (t *Translator) WGSLToSPIRV(src []byte) ([]byte, error) {
	key := sha256.Sum256(src)
	return t.cache.GetOrCompute(key, func() ([]byte, error) {
		opts := naga.DefaultOptions()
		opts.Debug = t.debug
		opts.Validate = false
		out, err := naga.CompileWithOptions(string(src), opts)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "shaderconv: wgsl"), ErrTranslate)
		}
		return out, nil
	})
}

// Check parses WGSL source and lowers it to IR without generating code.
func Check(src []byte) error {
	ast, err := naga.Parse(string(src))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "shaderconv: parse"), ErrTranslate)
	}
	if _, err := naga.LowerWithSource(ast, string(src)); err != nil {
		return errors.Mark(errors.Wrap(err, "shaderconv: lower"), ErrTranslate)
	}
	return nil
}

// Stats reports translation cache statistics.
func (t *Translator) Stats() cache.Stats { return t.cache.Stats() }

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// IsSPIRV reports whether code starts with the SPIR-V magic number.
func IsSPIRV(code []byte) bool {
	return len(code) >= 20 && len(code)%4 == 0 && binary.LittleEndian.Uint32(code) == SPIRVMagic
}
