package ir

import (
	"fmt"
	"go/token"
)

// Opcode enumerates instruction kinds.
type Opcode int

const (
	OpInvalid Opcode = iota

	// Binary arithmetic and bitwise operators.
	OpAdd
	OpFAdd
	OpSub
	OpFSub
	OpMul
	OpFMul
	OpUDiv
	OpSDiv
	OpFDiv
	OpURem
	OpSRem
	OpFRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor

	// Conversions.
	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpPtrToInt
	OpIntToPtr
	OpBitCast
	OpAddrSpaceCast

	OpICmp
	OpFCmp
	OpLoad
	OpStore
	OpGEP
	OpAlloca
	OpCall
	OpPhi
	OpSelect
	OpExtractValue
	OpExtractElement

	// Terminators.
	OpBr
	OpSwitch
	OpRet
)

var opcodeNames = map[Opcode]string{
	OpAdd: "add", OpFAdd: "fadd", OpSub: "sub", OpFSub: "fsub", OpMul: "mul", OpFMul: "fmul",
	OpUDiv: "udiv", OpSDiv: "sdiv", OpFDiv: "fdiv", OpURem: "urem", OpSRem: "srem", OpFRem: "frem",
	OpShl: "shl", OpLShr: "lshr", OpAShr: "ashr", OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpTrunc: "trunc", OpZExt: "zext", OpSExt: "sext", OpFPTrunc: "fptrunc", OpFPExt: "fpext",
	OpFPToUI: "fptoui", OpFPToSI: "fptosi", OpUIToFP: "uitofp", OpSIToFP: "sitofp",
	OpPtrToInt: "ptrtoint", OpIntToPtr: "inttoptr", OpBitCast: "bitcast", OpAddrSpaceCast: "addrspacecast",
	OpICmp: "icmp", OpFCmp: "fcmp", OpLoad: "load", OpStore: "store", OpGEP: "getelementptr",
	OpAlloca: "alloca", OpCall: "call", OpPhi: "phi", OpSelect: "select",
	OpExtractValue: "extractvalue", OpExtractElement: "extractelement",
	OpBr: "br", OpSwitch: "switch", OpRet: "ret",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op%d", int(op))
}

// IsBinary reports whether op is a two-operand arithmetic or bitwise operator.
func (op Opcode) IsBinary() bool {
	return op >= OpAdd && op <= OpXor
}

// IsCast reports whether op is a conversion.
func (op Opcode) IsCast() bool {
	return op >= OpTrunc && op <= OpAddrSpaceCast
}

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	return op == OpBr || op == OpSwitch || op == OpRet
}

// Predicate is the comparison performed by ICmp/FCmp.
type Predicate int

const (
	PredEQ Predicate = iota
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
	PredFOEQ
	PredFONE
	PredFOGT
	PredFOGE
	PredFOLT
	PredFOLE
	PredFUEQ
	PredFUNE
	PredFUGT
	PredFUGE
	PredFULT
	PredFULE
	PredFORD
	PredFUNO
	PredFTrue
	PredFFalse
)

var predicateNames = [...]string{
	"eq", "ne", "ugt", "uge", "ult", "ule", "sgt", "sge", "slt", "sle",
	"oeq", "one", "ogt", "oge", "olt", "ole", "ueq", "une", "ugt", "uge", "ult", "ule",
	"ord", "uno", "true", "false",
}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return "?"
}

// Instruction is one SSA operation. Which fields are meaningful depends on Op:
//
//	GEP             Operands[0] base, Operands[1:] indices
//	Load            Operands[0] address
//	Store           Operands[0] value, Operands[1] address
//	Call            Callee, Operands arguments (receiver first)
//	Phi             Operands[i] flows in from Incoming[i]
//	Br              Operands[0] condition (conditional form), Targets true/false
//	Switch          Operands[0] selector, Operands[1:] case constants,
//	                Targets[0] default, Targets[1:] case blocks
//	Alloca          Allocated is the stack slot type
//	ExtractValue    Indices into the aggregate Operands[0]
type Instruction struct {
	Op        Opcode
	Typ       Type
	Operands  []Value
	Pred      Predicate
	Volatile  bool
	Callee    *Function
	Incoming  []*Block
	Targets   []*Block
	Allocated Type
	Indices   []int
	Block     *Block
	Pos       token.Pos

	name      string
	referrers []*Instruction
}

func (i *Instruction) Type() Type   { return i.Typ }
func (i *Instruction) Name() string { return i.name }

// SetName assigns the instruction's source-level name.
func (i *Instruction) SetName(name string) *Instruction {
	i.name = name
	return i
}

// Referrers returns the instructions that use i as an operand, in creation
// order. Synthetic condition values are not counted.
func (i *Instruction) Referrers() []*Instruction {
	return i.referrers
}

// Uses returns how many operand slots refer to v.
func Uses(v Value) int {
	inst, ok := v.(*Instruction)
	if !ok {
		return 0
	}
	return len(inst.referrers)
}

func (i *Instruction) String() string {
	return fmt.Sprintf("%s %s", i.Op, i.Typ)
}
