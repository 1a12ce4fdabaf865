package cartridge

// mmc3 implements iNES mapper 4 (MMC3): eight bank registers (R0-R7)
// selected by a bank-select register, two 8 KiB switchable PRG slots
// plus two fixed slots whose arrangement inverts with the PRG-mode bit,
// six CHR regions (two 2 KiB + four 1 KiB) whose arrangement inverts
// with the CHR-mode bit, and a scanline-counting IRQ.
type mmc3 struct {
	prgROM []byte
	chr    []byte
	chrIsRAM bool
	prgRAM []byte

	prgBanks8k int
	chrBanks1k int

	bankSelect uint8
	prgMode    uint8
	chrMode    uint8
	registers  [8]uint8

	mirror MirrorMode

	prgRAMEnabled      bool
	prgRAMWriteProtect bool

	irqLatch      uint8
	irqCounter    uint8
	irqEnabled    bool
	irqPending    bool
	irqReloadFlag bool
}

func newMMC3(prgROM, chr []byte, mirror MirrorMode, prgRAMSize int, chrIsRAM bool) *mmc3 {
	return &mmc3{
		prgROM:        prgROM,
		chr:           chr,
		chrIsRAM:      chrIsRAM,
		prgRAM:        make([]byte, prgRAMSize),
		prgBanks8k:    len(prgROM) / 0x2000,
		chrBanks1k:    len(chr) / 0x400,
		mirror:        mirror,
		prgRAMEnabled: true,
	}
}

func (m *mmc3) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled {
			return m.prgRAM[addr-0x6000]
		}
		return 0
	case addr >= 0x8000 && addr < 0xA000:
		bank := m.registers[6]
		if m.prgMode == 1 {
			bank = uint8(m.prgBanks8k - 2)
		}
		return m.prgByte(bank, addr-0x8000)
	case addr >= 0xA000 && addr < 0xC000:
		return m.prgByte(m.registers[7], addr-0xA000)
	case addr >= 0xC000 && addr < 0xE000:
		bank := uint8(m.prgBanks8k - 2)
		if m.prgMode == 1 {
			bank = m.registers[6]
		}
		return m.prgByte(bank, addr-0xC000)
	default: // 0xE000-0xFFFF
		return m.prgByte(uint8(m.prgBanks8k-1), addr-0xE000)
	}
}

func (m *mmc3) prgByte(bank uint8, offset uint16) uint8 {
	b := reduceBank(int(bank), m.prgBanks8k)
	idx := b*0x2000 + int(offset)
	if idx < len(m.prgROM) {
		return m.prgROM[idx]
	}
	return 0
}

func (m *mmc3) WritePRG(addr uint16, value uint8) {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled && !m.prgRAMWriteProtect {
			m.prgRAM[addr-0x6000] = value
		}
	case addr >= 0x8000 && addr < 0xA000:
		if addr&1 == 0 {
			m.bankSelect = value & 0x07
			m.prgMode = (value >> 6) & 0x01
			m.chrMode = (value >> 7) & 0x01
		} else {
			m.registers[m.bankSelect] = value
		}
	case addr >= 0xA000 && addr < 0xC000:
		if addr&1 == 0 {
			if value&1 == 0 {
				m.mirror = MirrorVertical
			} else {
				m.mirror = MirrorHorizontal
			}
		} else {
			m.prgRAMWriteProtect = value&0x40 != 0
			m.prgRAMEnabled = value&0x80 != 0
		}
	case addr >= 0xC000 && addr < 0xE000:
		if addr&1 == 0 {
			m.irqLatch = value
		} else {
			m.irqCounter = 0
			m.irqReloadFlag = true
		}
	default:
		if addr&1 == 0 {
			m.irqEnabled = false
			m.irqPending = false
		} else {
			m.irqEnabled = true
		}
	}
}

func (m *mmc3) chrOffset(addr uint16) int {
	mode0 := []struct {
		lo, hi uint16
		reg    int
		size2k bool
	}{
		{0x0000, 0x0800, 0, true},
		{0x0800, 0x1000, 1, true},
		{0x1000, 0x1400, 2, false},
		{0x1400, 0x1800, 3, false},
		{0x1800, 0x1C00, 4, false},
		{0x1C00, 0x2000, 5, false},
	}
	mode1 := []struct {
		lo, hi uint16
		reg    int
		size2k bool
	}{
		{0x0000, 0x0400, 2, false},
		{0x0400, 0x0800, 3, false},
		{0x0800, 0x0C00, 4, false},
		{0x0C00, 0x1000, 5, false},
		{0x1000, 0x1800, 0, true},
		{0x1800, 0x2000, 1, true},
	}
	table := mode0
	if m.chrMode == 1 {
		table = mode1
	}
	for _, e := range table {
		if addr >= e.lo && addr < e.hi {
			bank := int(m.registers[e.reg])
			if e.size2k {
				bank &^= 1
			}
			return reduceBank(bank, max(m.chrBanks1k, 1))*0x400 + int(addr-e.lo)
		}
	}
	return 0
}

func (m *mmc3) ReadCHR(addr uint16, _ ChrSource) uint8 {
	offset := m.chrOffset(addr)
	if offset < len(m.chr) {
		return m.chr[offset]
	}
	return 0
}

func (m *mmc3) WriteCHR(addr uint16, value uint8) {
	if !m.chrIsRAM {
		return
	}
	offset := m.chrOffset(addr)
	if offset < len(m.chr) {
		m.chr[offset] = value
	}
}

func (m *mmc3) Mirroring() MirrorMode { return m.mirror }

// HandleScanline clocks the scanline IRQ counter. Real MMC3 hardware
// derives its clock from PPU A12 transitions; the spec's "per visible
// scanline, when rendering is enabled" hook is the coarser approximation
// it explicitly calls for.
func (m *mmc3) HandleScanline(renderingEnabled bool) {
	if !renderingEnabled {
		return
	}
	if m.irqCounter == 0 || m.irqReloadFlag {
		m.irqCounter = m.irqLatch
		m.irqReloadFlag = false
	} else {
		m.irqCounter--
	}
	if m.irqCounter == 0 && m.irqEnabled {
		m.irqPending = true
	}
}

func (m *mmc3) PollIRQ() bool { return m.irqPending }
