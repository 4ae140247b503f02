package main

type Accum struct {
	sum uint32
}

func (a *Accum) Add(n uint32) {
	for i := uint32(0); i < n; i++ {
		a.sum = a.sum + i
	}
}

func main() {}
