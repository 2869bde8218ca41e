// Command example demonstrates two peers concurrently editing an ordered
// list of strings and converging after messages are exchanged, covering
// spec.md §8 scenario 4 (concurrent inserts at the same anchor). It is a
// plain program, not a CLI or REPL (spec.md §1 excludes those from the
// core).
package main

import (
	"context"
	"fmt"

	"github.com/drpcorg/ordercrdt/idgen"
	"github.com/drpcorg/ordercrdt/peer"
)

func main() {
	ctx := context.Background()

	p1 := peer.New[string](idgen.NewPeerID(), peer.Options{})
	p2 := peer.New[string](idgen.NewPeerID(), peer.Options{})

	p1.List.Insert(0, "a")
	deliver(ctx, p1, p2)

	p2.List.Insert(1, "b")
	p1.List.Insert(1, "c")
	deliver(ctx, p1, p2)
	deliver(ctx, p2, p1)

	fmt.Println("p1:", p1.List.ToSequence())
	fmt.Println("p2:", p2.List.ToSequence())
}

// deliver flushes every pending message on from and applies it to to, as
// an in-process stand-in for the (out of scope) transport layer.
func deliver(ctx context.Context, from, to *peer.Peer[string]) {
	for from.HasPendingOutbound() {
		msg := from.MakeMessage()
		if err := to.ProcessMessage(ctx, msg); err != nil {
			panic(err)
		}
	}
}
