// Command progresswatch connects to cmd/apiserver's progress websocket
// for one batch and prints each model.ProgressEvent as it arrives.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/freedkr/docbatch/internal/model"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "apiserver host:port")
	batchID := flag.String("batch", "", "batch id to watch")
	insecure := flag.Bool("insecure", false, "use ws:// instead of wss://")
	flag.Parse()

	if *batchID == "" {
		fmt.Fprintln(os.Stderr, "usage: progresswatch -batch <batch id> [-addr host:port] [-insecure]")
		os.Exit(2)
	}

	if err := watch(*addr, *batchID, *insecure); err != nil {
		log.Fatalf("progresswatch: %v", err)
	}
}

func watch(addr, batchID string, insecure bool) error {
	scheme := "wss"
	if insecure {
		scheme = "ws"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: "/ws/batches/" + batchID}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	for {
		var ev model.ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return fmt.Errorf("read progress event: %w", err)
		}
		printEvent(ev)
	}
}

func printEvent(ev model.ProgressEvent) {
	fmt.Printf("[%s] %s %d/%d (failed %d) %s\n",
		ev.Status, ev.DocumentName, ev.Processed, ev.Total, ev.Failed, ev.Message)
}
