package wire

import "fmt"

// Opcode identifies a brain command.
type Opcode uint8

// Command opcodes understood by the brain.
const (
	OpFileControl   Opcode = 0x10
	OpRunProgram    Opcode = 0x18
	OpQuerySlot     Opcode = 0x19
	OpSetMetadata   Opcode = 0x1A
	OpEraseSlot     Opcode = 0x1B
	OpVerify        Opcode = 0x1C
	OpBeginTransfer Opcode = 0x11
	OpEndTransfer   Opcode = 0x12
	OpWriteChunk    Opcode = 0x13
	OpSystemStatus  Opcode = 0x22
	OpRadioStatus   Opcode = 0x26
	OpUserOutput    Opcode = 0x27
	OpKVLoad        Opcode = 0x2E
	OpKVSave        Opcode = 0x2F
)

var opcodeNames = map[Opcode]string{
	OpFileControl:   "file_control",
	OpRunProgram:    "run_program",
	OpQuerySlot:     "query_slot",
	OpSetMetadata:   "set_metadata",
	OpEraseSlot:     "erase_slot",
	OpVerify:        "verify",
	OpBeginTransfer: "begin_transfer",
	OpEndTransfer:   "end_transfer",
	OpWriteChunk:    "write_chunk",
	OpSystemStatus:  "system_status",
	OpRadioStatus:   "radio_status",
	OpUserOutput:    "user_output",
	OpKVLoad:        "kv_load",
	OpKVSave:        "kv_save",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(o))
}

// Ack is the status byte of a reply.
type Ack uint8

// Reply status codes.
const (
	AckOK                Ack = 0x76
	AckNack              Ack = 0xFF
	AckNackCRC           Ack = 0xCE
	AckPayloadTooShort   Ack = 0xD0
	AckTransferTooLarge  Ack = 0xD1
	AckNotInitialized    Ack = 0xD4
	AckOffsetMismatch    Ack = 0xD7
	AckSlotOutOfRange    Ack = 0xD9
	AckUnsupported       Ack = 0xDA
	AckReferenceMismatch Ack = 0xDB
)

var ackNames = map[Ack]string{
	AckOK:                "ack",
	AckNack:              "general nack",
	AckNackCRC:           "packet crc error",
	AckPayloadTooShort:   "payload too short",
	AckTransferTooLarge:  "transfer too large",
	AckNotInitialized:    "transfer not initialized",
	AckOffsetMismatch:    "offset mismatch",
	AckSlotOutOfRange:    "slot out of range",
	AckUnsupported:       "unsupported",
	AckReferenceMismatch: "reference mismatch",
}

func (a Ack) String() string {
	if name, ok := ackNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ack(0x%02x)", uint8(a))
}
