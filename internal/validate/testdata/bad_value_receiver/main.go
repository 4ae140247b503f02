package main

type Reg struct {
	v uint16
}

func (r Reg) Get() uint16 {
	return r.v
}

func main() {}
