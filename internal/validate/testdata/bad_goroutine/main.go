package main

type Worker struct {
	busy bool
}

func (w *Worker) Step() {}

func (w *Worker) Start() {
	go w.Step()
}

func main() {}
