package main

type Sink interface {
	Put(v uint32)
}

type Counter struct {
	count uint8
	out   Sink
}

func (c *Counter) Incr() {
	c.count = c.count + 1
}

func (c *Counter) Read() uint8 {
	return c.count
}

func (c *Counter) Flush(limit uint8) {
	if c.count > limit {
		c.out.Put(uint32(c.count))
	}
	c.count = 0
}

func main() {}
