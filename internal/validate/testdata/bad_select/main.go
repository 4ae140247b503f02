package main

type Arbiter struct {
	a, b chan uint8
	last uint8
}

func (r *Arbiter) Pick() {
	select {
	case v := <-r.a:
		r.last = v
	case v := <-r.b:
		r.last = v
	}
}

func main() {}
