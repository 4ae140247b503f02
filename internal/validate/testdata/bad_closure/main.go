package main

type Holder struct {
	v uint8
}

func (h *Holder) Bump() {
	inc := func() { h.v = h.v + 1 }
	inc()
}

func main() {}
