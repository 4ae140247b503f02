package main

type Sink interface {
	Put(v uint32)
}

type Flags struct {
	valid bool
	tag   uint8
}

type Stage struct {
	count uint8
	last  uint32
	flags Flags
	out   Sink
}

func (s *Stage) Push(v uint32) {
	if v > 10 {
		s.out.Put(v)
		s.last = v
	} else {
		s.last = v + 1
	}
	s.count = s.count + 1
}

func (s *Stage) Shift(n uint8) uint32 {
	return s.last << n
}

func (s *Stage) Valid() bool {
	return s.flags.valid
}

func main() {}
