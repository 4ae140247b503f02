package main

type Alu struct {
	acc uint8
}

func double(x uint8) uint8 {
	return x + x
}

func (a *Alu) Twice() {
	a.acc = double(a.acc)
}

func main() {}
