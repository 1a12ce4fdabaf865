package cartridge

// nrom implements iNES mapper 0 (NROM): no bank switching. PRG-ROM is
// 16 KiB (mirrored across both CPU windows) or 32 KiB (mapped directly);
// CHR is a single fixed 8 KiB ROM or RAM bank.
type nrom struct {
	prgROM []byte
	chr    []byte
	prgRAM []byte
	mirror MirrorMode
	banks  int // number of 16 KiB PRG banks (1 or 2)
}

func newNROM(prgROM, chr []byte, mirror MirrorMode, prgRAMSize int, chrIsRAM bool) *nrom {
	_ = chrIsRAM
	return &nrom{
		prgROM: prgROM,
		chr:    chr,
		prgRAM: make([]byte, prgRAMSize),
		mirror: mirror,
		banks:  len(prgROM) / prgBankSize,
	}
}

func (m *nrom) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		return m.prgRAM[addr-0x6000]
	case addr >= 0x8000:
		offset := addr - 0x8000
		if m.banks == 1 {
			offset &= 0x3FFF
		}
		if int(offset) < len(m.prgROM) {
			return m.prgROM[offset]
		}
	}
	return 0
}

func (m *nrom) WritePRG(addr uint16, value uint8) {
	if addr >= 0x6000 && addr < 0x8000 {
		m.prgRAM[addr-0x6000] = value
	}
	// ROM area writes are not meaningful on NROM.
}

func (m *nrom) ReadCHR(addr uint16, _ ChrSource) uint8 {
	if int(addr) < len(m.chr) {
		return m.chr[addr]
	}
	return 0
}

func (m *nrom) WriteCHR(addr uint16, value uint8) {
	if int(addr) < len(m.chr) {
		m.chr[addr] = value
	}
}

func (m *nrom) Mirroring() MirrorMode           { return m.mirror }
func (m *nrom) HandleScanline(_ bool)           {}
func (m *nrom) PollIRQ() bool                   { return false }
