package main

type Walker struct {
	depth uint8
}

func (w *Walker) Descend() {
	if w.depth > 0 {
		w.depth = w.depth - 1
		w.Descend()
	}
}

func main() {}
