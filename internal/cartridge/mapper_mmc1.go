package cartridge

// mmc1 implements iNES mapper 1 (MMC1): a 5-bit serial shift register
// feeding four internal registers (control, CHR bank 0, CHR bank 1, PRG
// bank), selected by address bits 13-14 of the write that completes the
// fifth shift.
type mmc1 struct {
	prgROM []byte
	chr    []byte
	chrIsRAM bool
	prgRAM []byte

	prgBanks int // 16 KiB banks
	chrBanks int // 4 KiB banks

	shift      uint8
	shiftCount uint8

	mirror     uint8 // 0=single-lower 1=single-upper 2=vertical 3=horizontal
	prgMode    uint8 // 0/1=32KiB 2=fix-first 3=fix-last
	chrMode    uint8 // 0=8KiB 1=4KiB

	chrBank0 uint8
	chrBank1 uint8
	prgBank  uint8

	// prgRAMEnabled reflects bit 4 of the PRG-bank register (MMC1B/C
	// PRG-RAM disable). Whether that bit is honored is configurable per
	// board variant rather than hardcoded, per the spec's open question
	// about MMC1 PRG-RAM disable semantics varying by board revision.
	prgRAMEnabled     bool
	honorRAMDisable bool
}

func newMMC1(prgROM, chr []byte, mirror MirrorMode, prgRAMSize int, chrIsRAM bool) *mmc1 {
	m := &mmc1{
		prgROM:          prgROM,
		chr:             chr,
		chrIsRAM:        chrIsRAM,
		prgRAM:          make([]byte, prgRAMSize),
		prgBanks:        len(prgROM) / prgBankSize,
		chrBanks:        len(chr) / 4096,
		shift:           0x10,
		prgMode:         3,
		prgRAMEnabled:   true,
		honorRAMDisable: true,
	}
	switch mirror {
	case MirrorVertical:
		m.mirror = 2
	default:
		m.mirror = 3
	}
	if m.chrBanks == 0 {
		m.chrBanks = 2
	}
	return m
}

func (m *mmc1) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled || !m.honorRAMDisable {
			return m.prgRAM[addr-0x6000]
		}
		return 0
	case addr >= 0x8000 && addr < 0xC000:
		bank := m.firstPRGBank()
		offset := bank*prgBankSize + int(addr-0x8000)
		if offset < len(m.prgROM) {
			return m.prgROM[offset]
		}
	case addr >= 0xC000:
		bank := m.secondPRGBank()
		offset := bank*prgBankSize + int(addr-0xC000)
		if offset < len(m.prgROM) {
			return m.prgROM[offset]
		}
	}
	return 0
}

func (m *mmc1) firstPRGBank() int {
	switch m.prgMode {
	case 0, 1:
		return reduceBank(int(m.prgBank&0xFE), m.prgBanks)
	case 2:
		return 0
	default: // 3
		return reduceBank(int(m.prgBank), m.prgBanks)
	}
}

func (m *mmc1) secondPRGBank() int {
	switch m.prgMode {
	case 0, 1:
		return reduceBank(int(m.prgBank&0xFE)|1, m.prgBanks)
	case 2:
		return reduceBank(int(m.prgBank), m.prgBanks)
	default: // 3
		return m.prgBanks - 1
	}
}

func (m *mmc1) WritePRG(addr uint16, value uint8) {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled || !m.honorRAMDisable {
			m.prgRAM[addr-0x6000] = value
		}
	case addr >= 0x8000:
		if value&0x80 != 0 {
			m.shift = 0x10
			m.shiftCount = 0
			m.prgMode = 3
			return
		}
		complete := m.shiftCount == 4
		m.shift = (m.shift >> 1) | ((value & 1) << 4)
		m.shiftCount++
		if complete {
			m.commit(addr, m.shift)
			m.shift = 0x10
			m.shiftCount = 0
		}
	}
}

func (m *mmc1) commit(addr uint16, value uint8) {
	switch {
	case addr < 0xA000:
		m.mirror = value & 0x03
		m.prgMode = (value >> 2) & 0x03
		m.chrMode = (value >> 4) & 0x01
	case addr < 0xC000:
		m.chrBank0 = value & 0x1F
	case addr < 0xE000:
		m.chrBank1 = value & 0x1F
	default:
		m.prgBank = value & 0x0F
		m.prgRAMEnabled = value&0x10 == 0
	}
}

func (m *mmc1) chrOffset(addr uint16) int {
	if m.chrMode == 0 {
		bank := int(m.chrBank0 & 0xFE)
		if addr >= 0x1000 {
			bank |= 1
		}
		return reduceBank(bank, m.chrBanks*2)*0x1000 + int(addr&0x0FFF)
	}
	if addr < 0x1000 {
		return reduceBank(int(m.chrBank0), m.chrBanks*2)*0x1000 + int(addr)
	}
	return reduceBank(int(m.chrBank1), m.chrBanks*2)*0x1000 + int(addr-0x1000)
}

func (m *mmc1) ReadCHR(addr uint16, _ ChrSource) uint8 {
	offset := m.chrOffset(addr)
	if offset < len(m.chr) {
		return m.chr[offset]
	}
	return 0
}

func (m *mmc1) WriteCHR(addr uint16, value uint8) {
	if !m.chrIsRAM {
		return
	}
	offset := m.chrOffset(addr)
	if offset < len(m.chr) {
		m.chr[offset] = value
	}
}

func (m *mmc1) Mirroring() MirrorMode {
	switch m.mirror {
	case 0:
		return MirrorSingleScreenLower
	case 1:
		return MirrorSingleScreenUpper
	case 2:
		return MirrorVertical
	default:
		return MirrorHorizontal
	}
}

func (m *mmc1) HandleScanline(_ bool) {}
func (m *mmc1) PollIRQ() bool         { return false }
