package main

type Pipe struct {
	last uint32
}

func (p *Pipe) Push(v uint32) {
	ch := make(chan uint32, 1)
	ch <- v
	p.last = <-ch
}

func main() {}
