package main

type Table struct {
	entries map[uint8]uint8
}

func (t *Table) Set(k, v uint8) {
	t.entries[k] = v
}

func main() {}
