package elf

import "errors"

var (
	ErrInvalidMagic         = errors.New("invalid ELF magic")
	ErrUnsupportedClass     = errors.New("unsupported ELF class")
	ErrUnsupportedByteOrder = errors.New("unsupported ELF byte order")
	ErrCorruptFile          = errors.New("corrupt ELF file")
	ErrBufferTooSmall       = errors.New("elf: buffer too small")
	ErrIndexOutOfRange      = errors.New("elf: index out of range")
	ErrTooManyHeaders       = errors.New("elf: too many headers")
)
