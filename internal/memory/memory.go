// Package memory implements the NES CPU and PPU address spaces: internal
// work RAM, register mirroring, OAM DMA dispatch, and PPU nametable/palette
// RAM with mapper-aware CHR and nametable routing.
package memory

import (
	"github.com/sirupsen/logrus"

	"github.com/minhcrafters/gones/internal/cartridge"
)

// Memory represents the CPU's view of the NES address space.
type Memory struct {
	ram [0x800]uint8

	ppuRegisters PPUInterface
	apuRegisters APUInterface
	inputSystem  InputInterface
	cartridge    CartridgeInterface

	dmaCallback func(uint8)

	// openBusValue holds the last value that appeared on the data bus, an
	// approximation of the NES's capacitive bus-decay behavior used when
	// an unmapped or write-only address is read.
	openBusValue uint8

	log *logrus.Entry
}

// PPUMemory represents the PPU's 14-bit memory space: pattern tables
// (delegated to the cartridge mapper), nametables (mirrored per the
// cartridge, with an optional mapper override), and palette RAM.
type PPUMemory struct {
	vram        [0x1000]uint8 // fallback nametable storage, 4 x 1 KiB; also backs four-screen mirroring in full
	paletteRAM  [32]uint8
	cartridge   CartridgeInterface
	mirroring   MirrorMode
	nametableOv cartridge.NametableOverrider // non-nil when the mapper intercepts nametable access
}

// MirrorMode represents nametable mirroring mode.
type MirrorMode uint8

const (
	MirrorHorizontal MirrorMode = iota
	MirrorVertical
	MirrorSingleScreen0
	MirrorSingleScreen1
	MirrorFourScreen
)

func fromCartridgeMirror(m cartridge.MirrorMode) MirrorMode {
	switch m {
	case cartridge.MirrorVertical:
		return MirrorVertical
	case cartridge.MirrorSingleScreenLower:
		return MirrorSingleScreen0
	case cartridge.MirrorSingleScreenUpper:
		return MirrorSingleScreen1
	case cartridge.MirrorFourScreen:
		return MirrorFourScreen
	default:
		return MirrorHorizontal
	}
}

// PPUInterface defines the interface for PPU register access.
type PPUInterface interface {
	ReadRegister(address uint16) uint8
	WriteRegister(address uint16, value uint8)
}

// APUInterface defines the interface for APU register access.
type APUInterface interface {
	WriteRegister(address uint16, value uint8)
	ReadStatus() uint8
}

// InputInterface defines the interface for input system access.
type InputInterface interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// CartridgeInterface is the subset of cartridge.Cartridge that the memory
// subsystem depends on; it matches cartridge.Mapper's capability set so a
// *cartridge.Cartridge satisfies it directly.
type CartridgeInterface interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
	ReadCHR(address uint16, source cartridge.ChrSource) uint8
	WriteCHR(address uint16, value uint8)
	Mirroring() cartridge.MirrorMode
}

// New creates a new Memory instance. RAM starts zero-initialized; reset
// does not clear it.
func New(ppu PPUInterface, apu APUInterface, cart CartridgeInterface) *Memory {
	return &Memory{
		ppuRegisters: ppu,
		apuRegisters: apu,
		cartridge:    cart,
		log:          logrus.WithField("component", "memory"),
	}
}

// SetInputSystem sets the input system for controller access.
func (m *Memory) SetInputSystem(input InputInterface) {
	m.inputSystem = input
}

// SetDMACallback sets the DMA callback function.
func (m *Memory) SetDMACallback(callback func(uint8)) {
	m.dmaCallback = callback
}

// SetLogger overrides the structured logger used for diagnostic output.
func (m *Memory) SetLogger(log *logrus.Entry) {
	m.log = log
}

// Read reads a byte from the given CPU address.
func (m *Memory) Read(address uint16) uint8 {
	var value uint8

	switch {
	case address < 0x2000:
		value = m.ram[address&0x07FF]

	case address < 0x4000:
		value = m.ppuRegisters.ReadRegister(0x2000 + (address & 0x0007))

	case address < 0x4020:
		switch {
		case address == 0x4015:
			value = m.apuRegisters.ReadStatus()
		case address == 0x4016 || address == 0x4017:
			if m.inputSystem != nil {
				value = m.inputSystem.Read(address)
			}
		default:
			value = m.openBusValue
		}

	case address >= 0x6000 && address < 0x8000:
		if m.cartridge != nil {
			value = m.cartridge.ReadPRG(address)
		} else {
			value = m.openBusValue
		}

	case address < 0x8000:
		value = m.openBusValue

	default:
		if m.cartridge != nil {
			value = m.cartridge.ReadPRG(address)
		} else {
			value = m.openBusValue
		}
	}

	m.openBusValue = value
	return value
}

// Write writes a byte to the given CPU address.
func (m *Memory) Write(address uint16, value uint8) {
	switch {
	case address < 0x2000:
		m.ram[address&0x07FF] = value

	case address < 0x4000:
		m.ppuRegisters.WriteRegister(0x2000+(address&0x0007), value)

	case address < 0x4020:
		switch {
		case address == 0x4014:
			if m.dmaCallback != nil {
				m.dmaCallback(value)
			} else {
				m.performOAMDMA(value)
			}
		case address == 0x4016:
			if m.inputSystem != nil {
				m.inputSystem.Write(address, value)
			}
		case address >= 0x4000 && address <= 0x4013, address == 0x4015, address == 0x4017:
			m.apuRegisters.WriteRegister(address, value)
		}
		// $4018-$401F (APU/IO test mode) are unimplemented on retail hardware.

	case address >= 0x6000 && address < 0x8000:
		if m.cartridge != nil {
			m.cartridge.WritePRG(address, value)
		}

	case address < 0x8000:
		// Cartridge expansion area ($4020-$5FFF); unmapped on most boards.

	default:
		if m.cartridge != nil {
			m.cartridge.WritePRG(address, value)
		}
	}
}

// performOAMDMA copies 256 bytes from a CPU page into OAM via PPU register
// $2004. Used only as a fallback when no DMA callback is registered (the
// callback path models the suspend-cycle timing the bus is responsible for).
func (m *Memory) performOAMDMA(page uint8) {
	baseAddress := uint16(page) << 8
	for i := uint16(0); i < 256; i++ {
		m.ppuRegisters.WriteRegister(0x2004, m.Read(baseAddress+i))
	}
}

// NewPPUMemory creates a new PPU memory instance for the given cartridge.
func NewPPUMemory(cart CartridgeInterface, mirroring MirrorMode) *PPUMemory {
	mem := &PPUMemory{
		cartridge: cart,
		mirroring: mirroring,
	}
	if ov, ok := cart.(cartridge.NametableOverrider); ok {
		mem.nametableOv = ov
	}
	for i := 0; i < 32; i += 4 {
		mem.paletteRAM[i] = 0x0F
	}
	return mem
}

// ReadCHR reads a pattern-table byte, telling the mapper whether the fetch
// is for a background tile, a sprite tile, or neither (so boards like MMC5
// that bank background and sprite CHR independently can route correctly).
func (pm *PPUMemory) ReadCHR(address uint16, source cartridge.ChrSource) uint8 {
	return pm.cartridge.ReadCHR(address&0x1FFF, source)
}

// WriteCHR writes to the pattern-table address space (CHR-RAM only).
func (pm *PPUMemory) WriteCHR(address uint16, value uint8) {
	pm.cartridge.WriteCHR(address&0x1FFF, value)
}

// Read reads from the PPU's 14-bit memory space, dispatching pattern-table
// accesses to the mapper as background fetches.
func (pm *PPUMemory) Read(address uint16) uint8 {
	address &= 0x3FFF

	switch {
	case address < 0x2000:
		return pm.ReadCHR(address, cartridge.ChrSourceBackground)
	case address < 0x3000:
		return pm.readNametable(address)
	case address < 0x3F00:
		return pm.readNametable(address - 0x1000)
	default:
		return pm.readPalette(address)
	}
}

// Write writes to the PPU's 14-bit memory space.
func (pm *PPUMemory) Write(address uint16, value uint8) {
	address &= 0x3FFF

	switch {
	case address < 0x2000:
		pm.WriteCHR(address, value)
	case address < 0x3000:
		pm.writeNametable(address, value)
	case address < 0x3F00:
		pm.writeNametable(address-0x1000, value)
	default:
		pm.writePalette(address, value)
	}
}

func (pm *PPUMemory) readNametable(address uint16) uint8 {
	if pm.nametableOv != nil {
		if value, ok := pm.nametableOv.ReadNametable(address); ok {
			return value
		}
	}
	return pm.vram[pm.getNametableIndex(address)]
}

func (pm *PPUMemory) writeNametable(address uint16, value uint8) {
	if pm.nametableOv != nil {
		if pm.nametableOv.WriteNametable(address, value) {
			return
		}
	}
	pm.vram[pm.getNametableIndex(address)] = value
}

// getNametableIndex calculates the actual VRAM index for a nametable
// address, given the cartridge's mirroring mode. Four-screen mirroring
// gives each of the four logical nametables its own 1 KiB region, which
// fits entirely within the 4 KiB vram array (no extra backing needed).
func (pm *PPUMemory) getNametableIndex(address uint16) uint16 {
	address &= 0x0FFF
	nametable := (address >> 10) & 3
	offset := address & 0x3FF

	switch pm.mirroring {
	case MirrorHorizontal:
		if nametable >= 2 {
			return 0x400 + offset
		}
		return offset
	case MirrorVertical:
		if nametable == 1 || nametable == 3 {
			return 0x400 + offset
		}
		return offset
	case MirrorSingleScreen0:
		return offset
	case MirrorSingleScreen1:
		return 0x400 + offset
	case MirrorFourScreen:
		return uint16(nametable)*0x400 + offset
	default:
		return offset
	}
}

func (pm *PPUMemory) readPalette(address uint16) uint8 {
	index := (address - 0x3F00) & 0x1F
	if index == 0x10 || index == 0x14 || index == 0x18 || index == 0x1C {
		index &= 0x0F
	}
	return pm.paletteRAM[index]
}

func (pm *PPUMemory) writePalette(address uint16, value uint8) {
	index := (address - 0x3F00) & 0x1F
	if index == 0x10 || index == 0x14 || index == 0x18 || index == 0x1C {
		index &= 0x0F
	}
	pm.paletteRAM[index] = value
}
