package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/connect4-arena/internal/c4client"
	"github.com/park285/connect4-arena/pkg/matchdto"
)

// c4check opens a match between two scripted clients and plays until the
// first player wins on column 0.
func main() {
	baseURL := os.Getenv("C4_HTTP_URL")
	wsURL := os.Getenv("C4_WS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3001"
	}
	if wsURL == "" {
		wsURL = "ws://localhost:3000/ws"
	}

	client := c4client.NewClient(baseURL, c4client.WithTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Println("/healthz ok")

	alice, aliceIn := open(ctx, wsURL, "alice")
	defer alice.Close(context.Background())
	bob, bobIn := open(ctx, wsURL, "bob")
	defer bob.Close(context.Background())

	must(alice.Send(ctx, matchdto.Inbound{Type: matchdto.TypeCreateMatch, Username: "alice"}))
	var created matchdto.MatchCreated
	must(await(ctx, aliceIn, matchdto.TypeMatchCreated).Decode(&created))
	id := created.MatchID
	log.Printf("match %s created", id)

	must(bob.Send(ctx, matchdto.Inbound{Type: matchdto.TypeJoinMatch, MatchID: id, Username: "bob"}))
	await(ctx, bobIn, matchdto.TypeGameState)
	must(alice.Send(ctx, matchdto.Inbound{Type: matchdto.TypePlayerSetReady, MatchID: id}))
	must(bob.Send(ctx, matchdto.Inbound{Type: matchdto.TypePlayerSetReady, MatchID: id}))
	await(ctx, aliceIn, matchdto.TypeCountdownStart)
	log.Println("countdown started")
	await(ctx, aliceIn, matchdto.TypeTimerStart)

	// alice stacks column 0, bob column 1
	for i := 0; i < 4; i++ {
		must(alice.Send(ctx, move(id, 0)))
		f := awaitAny(ctx, aliceIn, matchdto.TypeBoardUpdate, matchdto.TypeGameOver)
		if f.Type == matchdto.TypeGameOver {
			var over matchdto.GameOver
			must(f.Decode(&over))
			log.Printf("game over: winner=%s reason=%s", over.WinnerUsername, over.Reason)
			break
		}
		must(bob.Send(ctx, move(id, 1)))
		awaitAny(ctx, aliceIn, matchdto.TypeBoardUpdate)
	}

	snap, err := client.Match(ctx, id)
	if err != nil {
		log.Fatalf("/matches/%s error: %v", id, err)
	}
	fmt.Printf("match %s status=%s moves=%d winner=%s\n", snap.MatchID, snap.Status, snap.MoveCount, snap.Winner)
}

func open(ctx context.Context, url, name string) (*c4client.WebSocket, chan c4client.Frame) {
	ws := c4client.NewWebSocket(url, 0)
	in := make(chan c4client.Frame, 64)
	ws.OnMessage(func(f c4client.Frame) {
		if f.Type == matchdto.TypeError {
			log.Printf("%s got error frame: %s", name, string(f.Raw))
		}
		in <- f
	})
	ws.OnStateChange(func(s c4client.State) { log.Printf("%s ws state: %s", name, s) })
	if err := ws.Connect(ctx); err != nil {
		log.Fatalf("%s connect error: %v", name, err)
	}
	return ws, in
}

func move(id string, col int) matchdto.Inbound {
	return matchdto.Inbound{Type: matchdto.TypeMakeMove, MatchID: id, Column: &col}
}

func await(ctx context.Context, in chan c4client.Frame, typ string) c4client.Frame {
	return awaitAny(ctx, in, typ)
}

func awaitAny(ctx context.Context, in chan c4client.Frame, types ...string) c4client.Frame {
	for {
		select {
		case <-ctx.Done():
			log.Fatalf("timed out waiting for %v", types)
		case f := <-in:
			for _, t := range types {
				if f.Type == t {
					return f
				}
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
