package cartridge

// mmc5 implements (a useful subset of) iNES mapper 5 (MMC5): independent
// background/sprite CHR bank sets, ExRAM serving as extra nametable
// storage, a fill-mode nametable, a per-tile background tile/palette
// override when ExRAM mode is 1, and a scanline-IRQ comparator. Full
// split-screen compositing is out of scope per the spec's design notes;
// only the ExRAM-mode fetch overrides it explicitly requires are wired.
type mmc5 struct {
	prgROM []byte
	chr    []byte
	chrIsRAM bool
	prgRAM []byte

	mirror MirrorMode

	prgMode  uint8
	chrMode  uint8
	prgBanks [4]uint8 // $5114-$5117
	prgRAMBank uint8

	prgRAMProtectA uint8
	prgRAMProtectB uint8
	prgRAMWritable bool

	chrRegs      [12]uint16
	chrUpperBits uint8
	chrBGSelect  bool // last CHR write targeted a background register ($5120-$5127 vs $5128-$512B)

	exram        [0x400]byte
	exramMode    uint8
	nametableMap [4]uint8 // 0=VRAM lower, 1=VRAM upper, 2=ExRAM, 3=fill
	fillTile     uint8
	fillAttr     uint8

	irqScanline uint8
	irqEnabled  bool
	irqPending  bool
	inFrame     bool
	scanline    uint8

	multiplierA uint8
	multiplierB uint8
}

var mmc5SpriteChrMap = [4][8]int{
	{7, 7, 7, 7, 7, 7, 7, 7},
	{3, 3, 3, 3, 7, 7, 7, 7},
	{1, 1, 3, 3, 5, 5, 7, 7},
	{0, 1, 2, 3, 4, 5, 6, 7},
}

var mmc5BGChrMap = [4][8]int{
	{11, 11, 11, 11, 11, 11, 11, 11},
	{11, 11, 11, 11, 11, 11, 11, 11},
	{9, 9, 11, 11, 9, 9, 11, 11},
	{8, 9, 10, 11, 8, 9, 10, 11},
}

func newMMC5(prgROM, chr []byte, mirror MirrorMode, prgRAMSize int, chrIsRAM bool) *mmc5 {
	c := chr
	if chrIsRAM || len(c) == 0 {
		c = make([]byte, 0x2000)
		chrIsRAM = true
	}
	if prgRAMSize < 0x10000 {
		prgRAMSize = 0x10000 // MMC5 boards commonly carry up to 64 KiB of PRG-RAM.
	}
	return &mmc5{
		prgROM:   prgROM,
		chr:      c,
		chrIsRAM: chrIsRAM,
		prgRAM:   make([]byte, prgRAMSize),
		mirror:   mirror,
		prgMode:  3,
		chrMode:  3,
	}
}

func (m *mmc5) prgBankCount() int {
	n := len(m.prgROM) / 0x2000
	if n == 0 {
		return 1
	}
	return n
}

func (m *mmc5) chrBankSpan() int {
	switch m.chrMode & 0x03 {
	case 0:
		return 0x2000
	case 1:
		return 0x1000
	case 2:
		return 0x0800
	default:
		return 0x0400
	}
}

func (m *mmc5) chrOffsetFor(reg int, chunk int) int {
	if len(m.chr) == 0 {
		return 0
	}
	span := m.chrBankSpan()
	value := int(m.chrRegs[reg])
	base := (value * span) % len(m.chr)
	chunksPerBank := span / 0x400
	if chunksPerBank == 0 {
		chunksPerBank = 1
	}
	offset := base + (chunk%chunksPerBank)*0x400
	return offset % len(m.chr)
}

func (m *mmc5) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x5113 && addr == 0x5113:
		return 0
	case addr >= 0x6000 && addr < 0x8000:
		idx := m.prgRAMIndex(addr)
		if idx >= 0 {
			return m.prgRAM[idx]
		}
		return 0
	case addr >= 0x8000:
		slot := int(addr-0x8000) / 0x2000
		regIndex := m.prgSlotRegister(slot)
		val := m.prgBanks[regIndexClamp(regIndex)]
		isROM := regIndex == 3 || val&0x80 != 0
		if !isROM || len(m.prgROM) == 0 {
			return 0
		}
		bank := int(val&0x7F) % m.prgBankCount()
		offset := bank*0x2000 + int(addr&0x1FFF)
		if offset < len(m.prgROM) {
			return m.prgROM[offset]
		}
	}
	return 0
}

func regIndexClamp(i int) int {
	if i < 0 {
		return 0
	}
	if i > 3 {
		return 3
	}
	return i
}

func (m *mmc5) prgSlotRegister(slot int) int {
	switch m.prgMode & 0x03 {
	case 0:
		return 3
	case 1:
		if slot < 2 {
			return 1
		}
		return 3
	case 2:
		if slot < 2 {
			return 1
		}
		return slot
	default:
		return slot
	}
}

func (m *mmc5) prgRAMIndex(addr uint16) int {
	if len(m.prgRAM) == 0 {
		return -1
	}
	banks := len(m.prgRAM) / 0x2000
	if banks == 0 {
		banks = 1
	}
	bank := int(m.prgRAMBank&0x0F) % banks
	return bank*0x2000 + int(addr-0x6000)
}

func (m *mmc5) WritePRG(addr uint16, value uint8) {
	switch addr {
	case 0x5100:
		m.prgMode = value & 0x03
	case 0x5101:
		m.chrMode = value & 0x03
	case 0x5102:
		m.prgRAMProtectA = value & 0x03
		m.syncPRGRAMWritable()
	case 0x5103:
		m.prgRAMProtectB = value & 0x03
		m.syncPRGRAMWritable()
	case 0x5104:
		m.exramMode = value & 0x03
	case 0x5105:
		m.nametableMap[0] = value & 0x03
		m.nametableMap[1] = (value >> 2) & 0x03
		m.nametableMap[2] = (value >> 4) & 0x03
		m.nametableMap[3] = (value >> 6) & 0x03
	case 0x5106:
		m.fillTile = value
	case 0x5107:
		m.fillAttr = value & 0x03
	case 0x5113:
		m.prgRAMBank = value & 0x0F
	case 0x5114, 0x5115, 0x5116, 0x5117:
		m.prgBanks[addr-0x5114] = value
	case 0x5130:
		m.chrUpperBits = value & 0x03
	case 0x5203:
		m.irqScanline = value
	case 0x5204:
		m.irqEnabled = value&0x80 != 0
		if !m.irqEnabled {
			m.irqPending = false
		}
	case 0x5205:
		m.multiplierA = value
	case 0x5206:
		m.multiplierB = value
	default:
		switch {
		case addr >= 0x5120 && addr <= 0x512B:
			m.writeCHRRegister(int(addr-0x5120), value)
		case addr >= 0x5C00 && addr <= 0x5FFF:
			m.writeExram(int(addr-0x5C00), value)
		case addr >= 0x6000 && addr < 0x8000:
			if m.prgRAMWritable {
				if idx := m.prgRAMIndex(addr); idx >= 0 {
					m.prgRAM[idx] = value
				}
			}
		}
	}
}

func (m *mmc5) syncPRGRAMWritable() {
	m.prgRAMWritable = m.prgRAMProtectA == 2 && m.prgRAMProtectB == 1
}

func (m *mmc5) writeCHRRegister(reg int, value uint8) {
	if reg < 0 || reg >= len(m.chrRegs) {
		return
	}
	m.chrRegs[reg] = uint16(m.chrUpperBits&0x03)<<8 | uint16(value)
	m.chrBGSelect = reg >= 8
}

func (m *mmc5) writeExram(offset int, value uint8) {
	if m.exramMode == 0 || m.exramMode == 1 || m.exramMode == 2 {
		m.exram[offset%len(m.exram)] = value
	}
}

func (m *mmc5) ReadCHR(addr uint16, source ChrSource) uint8 {
	if len(m.chr) == 0 {
		return 0
	}
	chunk := int(addr) / 0x400
	within := int(addr) & 0x3FF
	var reg int
	switch source {
	case ChrSourceSprite:
		reg = mmc5SpriteChrMap[m.chrMode&0x03][chunk%8]
	case ChrSourceBackground:
		reg = mmc5BGChrMap[m.chrMode&0x03][chunk%8]
	default:
		if m.chrBGSelect {
			reg = mmc5BGChrMap[m.chrMode&0x03][chunk%8]
		} else {
			reg = mmc5SpriteChrMap[m.chrMode&0x03][chunk%8]
		}
	}
	base := m.chrOffsetFor(reg, chunk)
	idx := (base + within) % len(m.chr)
	return m.chr[idx]
}

func (m *mmc5) WriteCHR(addr uint16, value uint8) {
	if !m.chrIsRAM || len(m.chr) == 0 {
		return
	}
	chunk := int(addr) / 0x400
	within := int(addr) & 0x3FF
	reg := mmc5SpriteChrMap[m.chrMode&0x03][chunk%8]
	base := m.chrOffsetFor(reg, chunk)
	idx := (base + within) % len(m.chr)
	m.chr[idx] = value
}

func (m *mmc5) Mirroring() MirrorMode { return m.mirror }

func (m *mmc5) HandleScanline(renderingEnabled bool) {
	if renderingEnabled {
		m.inFrame = true
		if m.irqEnabled && m.irqScanline != 0 && m.scanline == m.irqScanline {
			m.irqPending = true
		}
		m.scanline++
	} else if m.inFrame {
		m.inFrame = false
		m.scanline = 0
	}
}

func (m *mmc5) PollIRQ() bool { return m.irqPending && m.irqEnabled }

func (m *mmc5) exramAccessible() bool { return m.exramMode == 0 || m.exramMode == 1 }

func (m *mmc5) nametableSlot(addr uint16) (mapping uint8, offset int) {
	quadrant := (int(addr-0x2000) / 0x400) & 0x03
	offset = int(addr-0x2000) & 0x3FF
	return m.nametableMap[quadrant], offset
}

func (m *mmc5) fillValue(offset int) uint8 {
	if offset >= 0x3C0 {
		return (m.fillAttr & 0x03) * 0x55
	}
	return m.fillTile
}

// ReadNametable implements NametableOverrider.
func (m *mmc5) ReadNametable(addr uint16) (uint8, bool) {
	if addr < 0x2000 || addr > 0x3EFF {
		return 0, false
	}
	mapping, offset := m.nametableSlot(addr)
	switch mapping {
	case 2:
		if m.exramAccessible() {
			return m.exram[offset%len(m.exram)], true
		}
		return 0, true
	case 3:
		return m.fillValue(offset), true
	default:
		// mapping 0/1 select the cartridge's ordinary VRAM pages; decline
		// so the bus falls through to its own nametable mirroring logic.
		return 0, false
	}
}

// WriteNametable implements NametableOverrider.
func (m *mmc5) WriteNametable(addr uint16, value uint8) bool {
	if addr < 0x2000 || addr > 0x3EFF {
		return false
	}
	mapping, offset := m.nametableSlot(addr)
	switch mapping {
	case 2:
		if m.exramAccessible() {
			m.exram[offset%len(m.exram)] = value
		}
		return true
	case 3:
		return true // fill mode: writes are discarded
	default:
		return false
	}
}

func (m *mmc5) tileExramOffset(tileCol, tileRow int) int {
	return ((tileRow%30)*32 + (tileCol % 32)) % len(m.exram)
}

// BackgroundOverride implements BackgroundOverrider: in ExRAM mode 1,
// each background tile's palette and CHR bank come from the
// corresponding ExRAM byte instead of the attribute table/CHR registers.
func (m *mmc5) BackgroundOverride(tileCol, tileRow int) (tile uint8, palette uint8, ok bool) {
	if m.exramMode != 1 {
		return 0, 0, false
	}
	entry := m.exram[m.tileExramOffset(tileCol, tileRow)]
	return entry & 0x3F, (entry >> 6) & 0x03, true
}
