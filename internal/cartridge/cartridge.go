// Package cartridge implements NES cartridge loading: iNES/NES 2.0 header
// parsing and the polymorphic mapper subsystem that virtualizes PRG-ROM,
// CHR-ROM/RAM, work RAM, and nametable mirroring per cartridge board.
package cartridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// MirrorMode is the nametable mirroring arrangement a cartridge selects,
// either fixed at load time or changed dynamically by the mapper.
type MirrorMode uint8

const (
	MirrorHorizontal MirrorMode = iota
	MirrorVertical
	MirrorSingleScreenLower
	MirrorSingleScreenUpper
	MirrorFourScreen
)

func (m MirrorMode) String() string {
	switch m {
	case MirrorHorizontal:
		return "horizontal"
	case MirrorVertical:
		return "vertical"
	case MirrorSingleScreenLower:
		return "single-screen-lower"
	case MirrorSingleScreenUpper:
		return "single-screen-upper"
	case MirrorFourScreen:
		return "four-screen"
	default:
		return "unknown"
	}
}

// ChrSource identifies which PPU consumer is fetching a CHR byte, so that
// mappers with per-consumer bank switching (MMC5) can answer differently
// for background tiles, sprite tiles, or a CPU-side peek.
type ChrSource uint8

const (
	ChrSourceBackground ChrSource = iota
	ChrSourceSprite
	ChrSourceCPU
)

// Mapper is the capability set every cartridge board variant satisfies.
// It is implemented as a closed set of concrete types dispatched from
// Cartridge rather than an open-ended plugin interface: createMapper is
// the only place a new variant is registered.
type Mapper interface {
	ReadPRG(addr uint16) uint8
	WritePRG(addr uint16, value uint8)
	ReadCHR(addr uint16, source ChrSource) uint8
	WriteCHR(addr uint16, value uint8)
	Mirroring() MirrorMode

	// HandleScanline is called once per visible scanline so mappers with
	// scanline-counting IRQs (MMC3, MMC5) can advance their counters.
	HandleScanline(renderingEnabled bool)

	// PollIRQ reports whether the mapper currently asserts its IRQ line.
	PollIRQ() bool
}

// NametableOverrider is implemented by mappers that intercept the PPU's
// nametable bus (MMC5's ExRAM nametable/fill modes). The bus falls
// through to internal VRAM when ok is false.
type NametableOverrider interface {
	ReadNametable(addr uint16) (value uint8, ok bool)
	WriteNametable(addr uint16, value uint8) (ok bool)
}

// BackgroundOverrider is implemented by mappers that can supply a
// per-tile background tile/palette override (MMC5 ExRAM mode 1).
// Renderers must query this before falling back to nametable/attribute
// VRAM for the corresponding tile.
type BackgroundOverrider interface {
	BackgroundOverride(tileCol, tileRow int) (tile uint8, palette uint8, ok bool)
}

// Cartridge owns the mapper selected at load time plus the raw ROM data
// it was constructed from.
type Cartridge struct {
	mapperID uint8
	mapper   Mapper

	hasBattery bool
	hasCHRRAM  bool

	prgROMSize int
	chrROMSize int
}

// iNES header layout (16 bytes, signature "NES\x1A").
type header struct {
	Magic      [4]byte
	PRGROMSize uint8
	CHRROMSize uint8
	Flags6     uint8
	Flags7     uint8
	Flags8     uint8 // PRG-RAM size (iNES) / mapper variant MSB + submapper (NES 2.0 byte 8)
	Flags9     uint8
	Flags10    uint8
	Padding    [5]byte
}

const (
	prgBankSize = 16 * 1024
	chrBankSize = 8 * 1024
)

// Load reads an iNES/NES 2.0 ROM image from disk.
func Load(path string) (*Cartridge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cartridge: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses an iNES/NES 2.0 image from an arbitrary reader,
// classifying the header and instantiating the correct mapper variant.
func LoadFromReader(r io.Reader) (*Cartridge, error) {
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("cartridge: read header: %w", err)
	}
	if string(hdr.Magic[:]) != "NES\x1a" {
		return nil, errors.New("cartridge: bad signature, not an iNES file")
	}
	if hdr.PRGROMSize == 0 {
		return nil, errors.New("cartridge: PRG-ROM size cannot be zero")
	}

	isNES20 := (hdr.Flags7&0x0C)>>2 == 0b10

	mapperID := uint16(hdr.Flags6>>4) | uint16(hdr.Flags7&0xF0)
	if isNES20 {
		mapperID |= uint16(hdr.Flags8&0x0F) << 8
	}

	var mirror MirrorMode
	switch {
	case hdr.Flags6&0x08 != 0:
		mirror = MirrorFourScreen
	case hdr.Flags6&0x01 != 0:
		mirror = MirrorVertical
	default:
		mirror = MirrorHorizontal
	}

	if hdr.Flags6&0x04 != 0 {
		trainer := make([]byte, 512)
		if _, err := io.ReadFull(r, trainer); err != nil {
			return nil, fmt.Errorf("cartridge: read trainer: %w", err)
		}
	}

	prgSize := int(hdr.PRGROMSize) * prgBankSize
	prgROM := make([]byte, prgSize)
	if _, err := io.ReadFull(r, prgROM); err != nil {
		return nil, fmt.Errorf("cartridge: read PRG-ROM: %w", err)
	}

	chrSize := int(hdr.CHRROMSize) * chrBankSize
	var chrROM []byte
	hasCHRRAM := chrSize == 0
	if chrSize > 0 {
		chrROM = make([]byte, chrSize)
		if _, err := io.ReadFull(r, chrROM); err != nil {
			return nil, fmt.Errorf("cartridge: read CHR-ROM: %w", err)
		}
	} else {
		// CHR-RAM: size unspecified by iNES byte 5; NES 2.0 can state an
		// exact size via byte 11's low nibble (exponent-multiplier), but
		// 8 KiB covers the overwhelming majority of CHR-RAM boards.
		chrROM = make([]byte, 8192)
	}

	prgRAMSize := 8192
	if isNES20 {
		// NES 2.0 byte 10 low nibble: shift count for 64 << n bytes, 0 = no PRG-RAM.
		shift := hdr.Flags10 & 0x0F
		if shift > 0 {
			prgRAMSize = 64 << shift
		}
	}

	id8 := uint8(mapperID & 0xFF)

	cart := &Cartridge{
		mapperID:   id8,
		hasBattery: hdr.Flags6&0x02 != 0,
		hasCHRRAM:  hasCHRRAM,
		prgROMSize: prgSize,
		chrROMSize: len(chrROM),
	}

	mapper, err := createMapper(id8, prgROM, chrROM, mirror, prgRAMSize, hasCHRRAM)
	if err != nil {
		return nil, err
	}
	cart.mapper = mapper

	logrus.WithFields(logrus.Fields{
		"mapper":     id8,
		"mirroring":  mirror.String(),
		"prg_bytes":  prgSize,
		"chr_bytes":  len(chrROM),
		"chr_is_ram": hasCHRRAM,
		"nes2_0":     isNES20,
	}).Debug("cartridge: loaded")

	return cart, nil
}

// createMapper is the single dispatch point from an iNES mapper number to
// a concrete Mapper variant. Unsupported mapper numbers are rejected as a
// cartridge-parse error rather than silently substituting NROM.
func createMapper(id uint8, prgROM, chrROM []byte, mirror MirrorMode, prgRAMSize int, chrIsRAM bool) (Mapper, error) {
	switch id {
	case 0:
		return newNROM(prgROM, chrROM, mirror, prgRAMSize, chrIsRAM), nil
	case 1:
		return newMMC1(prgROM, chrROM, mirror, prgRAMSize, chrIsRAM), nil
	case 2:
		return newUxROM(prgROM, chrROM, mirror, prgRAMSize, chrIsRAM), nil
	case 3:
		return newCNROM(prgROM, chrROM, mirror, prgRAMSize, chrIsRAM), nil
	case 4:
		return newMMC3(prgROM, chrROM, mirror, prgRAMSize, chrIsRAM), nil
	case 5:
		return newMMC5(prgROM, chrROM, mirror, prgRAMSize, chrIsRAM), nil
	default:
		return nil, fmt.Errorf("cartridge: unsupported mapper %d", id)
	}
}

// ReadPRG reads from PRG-ROM/RAM via the active mapper.
func (c *Cartridge) ReadPRG(addr uint16) uint8 { return c.mapper.ReadPRG(addr) }

// WritePRG writes to PRG-RAM or a mapper control register.
func (c *Cartridge) WritePRG(addr uint16, value uint8) { c.mapper.WritePRG(addr, value) }

// ReadCHR reads a pattern-table byte for the given consumer.
func (c *Cartridge) ReadCHR(addr uint16, source ChrSource) uint8 {
	return c.mapper.ReadCHR(addr, source)
}

// WriteCHR writes a CHR-RAM byte (ignored on CHR-ROM boards).
func (c *Cartridge) WriteCHR(addr uint16, value uint8) { c.mapper.WriteCHR(addr, value) }

// Mirroring reports the cartridge's current nametable mirroring mode.
func (c *Cartridge) Mirroring() MirrorMode { return c.mapper.Mirroring() }

// HandleScanline forwards the per-scanline hook to the active mapper.
func (c *Cartridge) HandleScanline(renderingEnabled bool) { c.mapper.HandleScanline(renderingEnabled) }

// PollIRQ reports whether the mapper currently asserts its IRQ line.
func (c *Cartridge) PollIRQ() bool { return c.mapper.PollIRQ() }

// Mapper exposes the concrete mapper for callers (PPU nametable/background
// override queries) that need the optional extended interfaces.
func (c *Cartridge) Mapper() Mapper { return c.mapper }

// HasBattery reports whether the cartridge's work-RAM is battery-backed.
func (c *Cartridge) HasBattery() bool { return c.hasBattery }

// reduceBank clamps a bank index to the physical bank count, so malformed
// or undersized ROMs cannot index out of bounds. Every mapper below
// routes its bank arithmetic through this.
func reduceBank(bank, bankCount int) int {
	if bankCount <= 0 {
		return 0
	}
	bank %= bankCount
	if bank < 0 {
		bank += bankCount
	}
	return bank
}
