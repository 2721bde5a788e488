package cc1101

// Configuration registers.
const (
	regIOCFG2   = 0x00
	regIOCFG1   = 0x01
	regIOCFG0   = 0x02
	regFIFOTHR  = 0x03
	regSYNC1    = 0x04
	regSYNC0    = 0x05
	regPKTLEN   = 0x06
	regPKTCTRL1 = 0x07
	regPKTCTRL0 = 0x08
	regADDR     = 0x09
	regCHANNR   = 0x0A
	regFSCTRL1  = 0x0B
	regFSCTRL0  = 0x0C
	regFREQ2    = 0x0D
	regFREQ1    = 0x0E
	regFREQ0    = 0x0F
	regMDMCFG4  = 0x10
	regMDMCFG3  = 0x11
	regMDMCFG2  = 0x12
	regMDMCFG1  = 0x13
	regMDMCFG0  = 0x14
	regDEVIATN  = 0x15
	regMCSM2    = 0x16
	regMCSM1    = 0x17
	regMCSM0    = 0x18
	regFOCCFG   = 0x19
	regBSCFG    = 0x1A
	regAGCCTRL2 = 0x1B
	regAGCCTRL1 = 0x1C
	regAGCCTRL0 = 0x1D
	regFREND1   = 0x21
	regFREND0   = 0x22
	regFSCAL3   = 0x23
	regFSCAL2   = 0x24
	regFSCAL1   = 0x25
	regFSCAL0   = 0x26
)

// Command strobes.
const (
	StrobeSRES  = 0x30
	StrobeSCAL  = 0x33
	StrobeSRX   = 0x34
	StrobeSIDLE = 0x36
	StrobeSFRX  = 0x3A
	StrobeSFTX  = 0x3B
	StrobeSNOP  = 0x3D
)

// Status registers. They share addresses with the strobes and are only
// reachable with both the read and burst bits set.
const (
	StatusPARTNUM   = 0x30
	StatusVERSION   = 0x31
	StatusRSSI      = 0x34
	StatusMARCSTATE = 0x35
	StatusRXBYTES   = 0x3B

	statusAccess = 0xC0
	rxBytesMask  = 0x7F // bit 7 is RXFIFO_OVERFLOW
)

// FIFO is the RX FIFO address.
const FIFO = 0x3F

// MARCSTATE values of interest.
const (
	MarcIdle       = 0x01
	MarcRX         = 0x0D
	MarcRXOverflow = 0x11
)

type regValue struct {
	addr byte
	val  byte
}

// tModeTable programs the modem for wM-Bus T-mode reception: 2-FSK at
// 32.768 kBaud, +/-50 kHz deviation, sync word 0x543D, infinite packet
// length with CRC and address filtering disabled, GDO0 asserted at the RX
// FIFO threshold. Sync word, bandwidth and data rate depend on each other;
// change them together.
var tModeTable = [...]regValue{
	{regIOCFG2, 0x2E},
	{regIOCFG0, 0x00},
	{regFIFOTHR, 0x00},
	{regSYNC1, 0x54},
	{regSYNC0, 0x3D},
	{regPKTLEN, 0x00},
	{regPKTCTRL1, 0x00},
	{regPKTCTRL0, 0x02},
	{regADDR, 0x00},
	{regCHANNR, 0x00},
	{regFSCTRL1, 0x06},
	{regFSCTRL0, 0x00},
	{regMDMCFG4, 0x8B},
	{regMDMCFG3, 0xF8},
	{regMDMCFG2, 0x13},
	{regMDMCFG1, 0x22},
	{regMDMCFG0, 0xF8},
	{regDEVIATN, 0x50},
	{regMCSM2, 0x07},
	{regMCSM1, 0x30},
	{regMCSM0, 0x18},
	{regFOCCFG, 0x16},
	{regBSCFG, 0x6C},
	{regAGCCTRL2, 0x43},
	{regAGCCTRL1, 0x40},
	{regAGCCTRL0, 0x91},
	{regFREND1, 0x56},
	{regFREND0, 0x10},
	{regFSCAL3, 0xE9},
	{regFSCAL2, 0x2A},
	{regFSCAL1, 0x00},
	{regFSCAL0, 0x1F},
}
