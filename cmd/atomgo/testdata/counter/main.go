package main

type Counter struct {
	count uint8
	limit uint8
}

func (c *Counter) Incr() {
	if c.count < c.limit {
		c.count = c.count + 1
	}
}

func (c *Counter) Read() uint8 {
	return c.count
}

func main() {}
