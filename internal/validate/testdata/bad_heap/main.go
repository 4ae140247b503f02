package main

type Node struct {
	next *Node
	v    uint8
}

func (n *Node) Grow() {
	n.next = &Node{v: n.v}
}

func main() {}
