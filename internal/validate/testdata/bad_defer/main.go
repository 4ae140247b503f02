package main

type Lock struct {
	held bool
}

func (l *Lock) release() {
	l.held = false
}

func (l *Lock) Run() {
	l.held = true
	defer l.release()
}

func main() {}
