package dap

import (
	"context"
	"encoding/binary"
	"sync"
)

// AccessKind identifies the primitive used for a recorded memory access.
type AccessKind uint8

const (
	AccessReadWord AccessKind = iota
	AccessWriteWord
	AccessReadBlock
	AccessWriteBlock
)

func (k AccessKind) String() string {
	switch k {
	case AccessReadWord:
		return "read-word"
	case AccessWriteWord:
		return "write-word"
	case AccessReadBlock:
		return "read-block"
	case AccessWriteBlock:
		return "write-block"
	}
	return "unknown"
}

// Access captures one primitive invocation for inspection within tests.
// Value is the word read or written; Length is the block size in bytes.
type Access struct {
	Kind   AccessKind
	Addr   uint32
	Value  uint32
	Length int
}

// ReadHook lets a simulated target claim a word read. Returning handled=false
// falls through to plain memory.
type ReadHook func(addr uint32) (value uint32, handled bool, err error)

// WriteHook lets a simulated target claim a word write.
type WriteHook func(addr, value uint32) (handled bool, err error)

// SimMemory is an in-memory MemoryAccessor useful for unit tests. Unwritten
// words read as zero. Block transfers are split into word accesses so hooks
// see every word. Hooks run with the memory lock held and must not call back
// into the SimMemory.
type SimMemory struct {
	OnRead  ReadHook
	OnWrite WriteHook

	mu     sync.Mutex
	words  map[uint32]uint32
	log    []Access
	speed  int
	failAt map[uint32]error
}

// NewSimMemory constructs an empty simulated memory space.
func NewSimMemory() *SimMemory {
	return &SimMemory{
		words:  make(map[uint32]uint32),
		failAt: make(map[uint32]error),
	}
}

// FailAt makes every access to addr return err.
func (s *SimMemory) FailAt(addr uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt[addr&^3] = err
}

// Poke stores a word without recording an access or invoking hooks.
func (s *SimMemory) Poke(addr, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[addr&^3] = value
}

// Peek returns a stored word without recording an access or invoking hooks.
func (s *SimMemory) Peek(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words[addr&^3]
}

// Accesses returns a copy of the recorded access log.
func (s *SimMemory) Accesses() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Access(nil), s.log...)
}

// ResetAccesses clears the access log.
func (s *SimMemory) ResetAccesses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

// Speed reports the last frequency passed to SetSpeed.
func (s *SimMemory) Speed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *SimMemory) ReadWord(ctx context.Context, addr uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.read(addr)
	if err != nil {
		return 0, err
	}
	s.log = append(s.log, Access{Kind: AccessReadWord, Addr: addr, Value: v})
	return v, nil
}

func (s *SimMemory) WriteWord(ctx context.Context, addr, value uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, Access{Kind: AccessWriteWord, Addr: addr, Value: value})
	return s.write(addr, value)
}

func (s *SimMemory) ReadBlock(ctx context.Context, addr uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	words, err := ValidateBlock(addr, buf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, Access{Kind: AccessReadBlock, Addr: addr, Length: len(buf)})
	for i := 0; i < words; i++ {
		v, err := s.read(addr + uint32(i*4))
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return nil
}

func (s *SimMemory) WriteBlock(ctx context.Context, addr uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	words, err := ValidateBlock(addr, buf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, Access{Kind: AccessWriteBlock, Addr: addr, Length: len(buf)})
	for i := 0; i < words; i++ {
		if err := s.write(addr+uint32(i*4), binary.LittleEndian.Uint32(buf[i*4:])); err != nil {
			return err
		}
	}
	return nil
}

// SetSpeed records the requested frequency.
func (s *SimMemory) SetSpeed(hz int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = hz
	return nil
}

func (s *SimMemory) read(addr uint32) (uint32, error) {
	if err := s.failAt[addr&^3]; err != nil {
		return 0, err
	}
	if s.OnRead != nil {
		v, handled, err := s.OnRead(addr)
		if err != nil || handled {
			return v, err
		}
	}
	return s.words[addr&^3], nil
}

func (s *SimMemory) write(addr, value uint32) error {
	if err := s.failAt[addr&^3]; err != nil {
		return err
	}
	if s.OnWrite != nil {
		handled, err := s.OnWrite(addr, value)
		if err != nil || handled {
			return err
		}
	}
	s.words[addr&^3] = value
	return nil
}
